// internal/services/download_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vendora/backend/internal/config"
	"github.com/vendora/backend/internal/metrics"
	"github.com/vendora/backend/internal/models"
	"github.com/vendora/backend/internal/security"
	"github.com/vendora/backend/internal/store"
)

// tokenPattern rejects anything that is not a 64-char lowercase hex string
// before any state is touched.
var tokenPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// RequestContext is the client fingerprint of one download attempt.
type RequestContext struct {
	IP        string
	UserAgent string
}

// FileHandle is a granted download: where the bytes live and the headers the
// response must carry.
type FileHandle struct {
	FileName string
	FileSize int64
	URL      string
	Headers  map[string]string
}

// DownloadService is the gate in front of every file download. Authorize runs
// the full check sequence; order matters and is part of the contract:
// cheap syntactic checks first, then rate limiting and abuse heuristics,
// then token state, and the quota increment last so a rejected request
// never consumes a download.
type DownloadService struct {
	store      store.Store
	limiter    *security.Limiter
	classifier *security.Classifier
	audit      *AuditService
	storage    *StorageService
	lookback   time.Duration
	logger     *logrus.Entry
}

func NewDownloadService(
	st store.Store,
	limiter *security.Limiter,
	classifier *security.Classifier,
	audit *AuditService,
	storage *StorageService,
	secCfg config.SecurityConfig,
) *DownloadService {
	return &DownloadService{
		store:      st,
		limiter:    limiter,
		classifier: classifier,
		audit:      audit,
		storage:    storage,
		lookback:   secCfg.PiracyLookbackWindow,
		logger:     logrus.WithField("component", "download"),
	}
}

// Authorize decides one download attempt. On success the token's quota has
// been consumed atomically and the returned FileHandle is ready to serve.
// Every rejection after the token is known is written to the audit ledger.
func (s *DownloadService) Authorize(ctx context.Context, tokenValue, accessCode string, req RequestContext) (*FileHandle, error) {
	if !tokenPattern.MatchString(tokenValue) {
		return s.reject(ctx, nil, req, ErrMalformedToken)
	}

	if !s.limiter.Allow(ctx, security.ClientKey(req.IP, req.UserAgent)) {
		return s.reject(ctx, nil, req, ErrRateLimited)
	}

	cl := s.classifier.Classify(security.Request{
		IP:              req.IP,
		UserAgent:       req.UserAgent,
		RecentDownloads: s.audit.RecentDownloadsByIP(ctx, req.IP, s.lookback),
	})
	if cl.BotLike {
		return s.reject(ctx, nil, req, ErrBotDetected)
	}
	if cl.ExcessiveDownloads {
		return s.reject(ctx, nil, req, ErrPiracyDetected)
	}

	token, err := s.store.GetToken(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.reject(ctx, nil, req, ErrTokenNotFound)
		}
		return s.reject(ctx, nil, req, ErrStorageFailure)
	}

	if !token.IsValidForDownload() {
		return s.reject(ctx, token, req, invalidTokenError(token))
	}

	if !token.AccessCodeUsed {
		if accessCode == "" {
			return s.reject(ctx, token, req, ErrAccessCodeRequired)
		}
		if bcrypt.CompareHashAndPassword([]byte(token.AccessCodeHash), []byte(accessCode)) != nil {
			return s.reject(ctx, token, req, ErrAccessCodeInvalid)
		}
		// A concurrent request may have consumed the code between the read
		// and this write. The code matched either way, so proceed.
		if err := s.store.ConsumeAccessCode(ctx, tokenValue); err != nil && !errors.Is(err, store.ErrConflict) {
			return s.reject(ctx, token, req, ErrStorageFailure)
		}
	}

	if cl.Suspicious {
		// Poison the token so it never serves again, then reject this
		// request without consuming a download.
		if err := s.store.FlagSecurity(ctx, tokenValue, cl.Reason); err != nil {
			s.logger.WithError(err).WithField("token", tokenValue).Error("Failed to flag token")
		}
		return s.reject(ctx, token, req, ErrSecurityBlocked)
	}

	info := security.BuildClientInfo(req.IP, req.UserAgent)
	updated, err := s.store.RecordDownload(ctx, tokenValue, info)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost the race: the token became invalid between the read and
			// the increment. Report the reason the fresh state shows.
			fresh, ferr := s.store.GetToken(ctx, tokenValue)
			if ferr == nil {
				if fresh.SecurityFlags.SuspiciousActivity {
					return s.reject(ctx, fresh, req, ErrSecurityBlocked)
				}
				return s.reject(ctx, fresh, req, invalidTokenError(fresh))
			}
			return s.reject(ctx, token, req, invalidTokenError(token))
		}
		return s.reject(ctx, token, req, ErrStorageFailure)
	}

	url, err := s.storage.ResolveFile(updated.FileURL)
	if err != nil {
		s.logger.WithError(err).WithField("token", tokenValue).Error("Failed to resolve file")
		return s.reject(ctx, updated, req, ErrStorageFailure)
	}

	s.audit.Record(ctx, &models.AuditLog{
		EventType:     models.AuditEventDownload,
		OrderID:       updated.OrderID,
		ProductID:     updated.ProductID,
		CustomerEmail: updated.CustomerEmail,
		DownloadToken: updated.Token,
		FileName:      updated.FileName,
		FileSize:      updated.FileSize,
		Success:       true,
		ClientInfo:    info,
	})
	metrics.DownloadsTotal.WithLabelValues("success").Inc()

	s.logger.WithFields(logrus.Fields{
		"token":          tokenValue,
		"order_id":       updated.OrderID,
		"download_count": updated.DownloadCount,
		"max_downloads":  updated.MaxDownloads,
	}).Info("Download authorized")

	return s.buildHandle(updated, url), nil
}

// TokenInfo returns the customer-visible state of a token without consuming
// anything: remaining downloads, expiry, whether an access code is still due.
func (s *DownloadService) TokenInfo(ctx context.Context, tokenValue string) (*models.DownloadToken, error) {
	if !tokenPattern.MatchString(tokenValue) {
		return nil, ErrMalformedToken
	}
	token, err := s.store.GetToken(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, ErrStorageFailure
	}
	return token, nil
}

// Deactivate revokes a token ahead of its natural expiry. Operator surface.
func (s *DownloadService) Deactivate(ctx context.Context, tokenValue string) error {
	if !tokenPattern.MatchString(tokenValue) {
		return ErrMalformedToken
	}
	if err := s.store.DeactivateToken(ctx, tokenValue); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenNotFound
		}
		return ErrStorageFailure
	}
	return nil
}

func (s *DownloadService) buildHandle(token *models.DownloadToken, url string) *FileHandle {
	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", token.FileName),
		"Cache-Control":       "no-cache, no-store, must-revalidate",
		"Pragma":              "no-cache",
		"Expires":             "0",
	}
	if token.HasWatermark() {
		headers["X-Watermark-ID"] = token.Watermark.WatermarkID
	}
	return &FileHandle{
		FileName: token.FileName,
		FileSize: token.FileSize,
		URL:      url,
		Headers:  headers,
	}
}

// reject records the failed attempt (once the token is known), bumps the
// rejection counter and returns the error.
func (s *DownloadService) reject(ctx context.Context, token *models.DownloadToken, req RequestContext, svcErr *ServiceError) (*FileHandle, error) {
	metrics.DownloadsTotal.WithLabelValues("rejected").Inc()
	metrics.DownloadRejections.WithLabelValues(svcErr.Code).Inc()

	if token != nil {
		s.audit.Record(ctx, &models.AuditLog{
			EventType:     models.AuditEventDownload,
			OrderID:       token.OrderID,
			ProductID:     token.ProductID,
			CustomerEmail: token.CustomerEmail,
			DownloadToken: token.Token,
			FileName:      token.FileName,
			Success:       false,
			ErrorMessage:  svcErr.Code + ": " + svcErr.Message,
			ClientInfo:    security.BuildClientInfo(req.IP, req.UserAgent),
		})
	}
	return nil, svcErr
}

// invalidTokenError maps token state to the rejection a customer sees.
// Precedence: quota first, then expiry, then deactivation.
func invalidTokenError(token *models.DownloadToken) *ServiceError {
	switch {
	case token.DownloadCount >= token.MaxDownloads:
		return ErrDownloadLimitExceeded
	case time.Now().After(token.ExpiresAt):
		return ErrTokenExpired
	default:
		return ErrTokenDeactivated
	}
}
