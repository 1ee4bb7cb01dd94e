// internal/store/store.go
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vendora/backend/internal/models"
)

var (
	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned when a conditional update finds its
	// precondition no longer holds at commit time.
	ErrConflict = errors.New("store: conditional update failed")
)

// DownloadStats aggregates per-order token usage for operator tooling.
type DownloadStats struct {
	TotalDownloads int64 `json:"total_downloads"`
	UniqueTokens   int64 `json:"unique_tokens"`
	ActiveTokens   int64 `json:"active_tokens"`
	ExpiredTokens  int64 `json:"expired_tokens"`
}

// AuditFilter narrows audit-log queries for operator tooling.
type AuditFilter struct {
	OrderID       *uuid.UUID
	CustomerEmail string
	EventType     models.AuditEventType
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// TokenStore persists download tokens. Every mutating operation is a single
// atomic unit against the backing store: preconditions are re-checked at
// commit time so concurrent requests on the same token cannot both succeed
// past a quota or access-code boundary.
type TokenStore interface {
	CreateToken(ctx context.Context, token *models.DownloadToken) error
	GetToken(ctx context.Context, tokenValue string) (*models.DownloadToken, error)

	// ConsumeAccessCode flips accessCodeUsed false -> true exactly once.
	// Returns ErrConflict if the code was already consumed.
	ConsumeAccessCode(ctx context.Context, tokenValue string) error

	// RecordDownload increments the download counter and stamps client info,
	// but only while the token is active, unexpired, unflagged and below its
	// quota. Returns the updated token, or ErrConflict when the precondition
	// failed at commit time.
	RecordDownload(ctx context.Context, tokenValue string, info models.ClientInfo) (*models.DownloadToken, error)

	// FlagSecurity marks the token suspicious and deactivates it in one
	// update; a flagged token never serves another download.
	FlagSecurity(ctx context.Context, tokenValue, reason string) error

	DeactivateToken(ctx context.Context, tokenValue string) error
	OrderDownloadStats(ctx context.Context, orderID uuid.UUID) (*DownloadStats, error)
	CountTokens(ctx context.Context, activeOnly bool) (int64, error)
}

// LicenseStore persists licenses and their activation lists.
type LicenseStore interface {
	CreateLicense(ctx context.Context, license *models.License) error
	GetLicense(ctx context.Context, licenseKey string) (*models.License, error)

	// MutateLicense applies fn to the current license state as one atomic
	// unit. Implementations guarantee that two concurrent mutations cannot
	// interleave: the memory store holds a lock, the SQL store takes a row
	// lock inside a transaction. fn returning an error aborts the mutation
	// and surfaces that error unchanged.
	MutateLicense(ctx context.Context, licenseKey string, fn func(*models.License) error) (*models.License, error)

	CountLicenses(ctx context.Context, status models.LicenseStatus) (int64, error)
}

// AuditStore is a write-only ledger plus the narrow queries operators need.
type AuditStore interface {
	RecordAudit(ctx context.Context, entry *models.AuditLog) error
	CountDownloadsByIPSince(ctx context.Context, ip string, since time.Time) (int64, error)
	ListAudits(ctx context.Context, filter AuditFilter) ([]models.AuditLog, int64, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	CountOrders(ctx context.Context) (int64, error)
}

type ProductStore interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error)
}

// Store is the full persistence surface of the delivery subsystem.
type Store interface {
	TokenStore
	LicenseStore
	AuditStore
	OrderStore
	ProductStore
}
