// internal/services/audit_service.go
package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vendora/backend/internal/models"
	"github.com/vendora/backend/internal/store"
)

// AuditService writes the append-only attempt ledger. A failed audit write
// must never fail the operation it records: Record logs locally and moves on.
type AuditService struct {
	store  store.AuditStore
	logger *logrus.Entry
}

func NewAuditService(auditStore store.AuditStore) *AuditService {
	return &AuditService{
		store:  auditStore,
		logger: logrus.WithField("component", "audit"),
	}
}

// Record appends one attempt to the ledger. The primary decision already
// made stands whether or not this write succeeds.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	if err := s.store.RecordAudit(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": entry.EventType,
			"order_id":   entry.OrderID,
		}).Error("Failed to write audit entry")
	}
}

// RecentDownloadsByIP counts successful downloads from ip since the cutoff;
// it feeds the excessive-download heuristic. On store failure the count is
// zero so a ledger outage cannot block legitimate downloads.
func (s *AuditService) RecentDownloadsByIP(ctx context.Context, ip string, window time.Duration) int64 {
	count, err := s.store.CountDownloadsByIPSince(ctx, ip, time.Now().Add(-window))
	if err != nil {
		s.logger.WithError(err).Warn("Failed to count recent downloads")
		return 0
	}
	return count
}

// Query exposes the operator-facing ledger search.
func (s *AuditService) Query(ctx context.Context, filter store.AuditFilter) ([]models.AuditLog, int64, error) {
	return s.store.ListAudits(ctx, filter)
}
