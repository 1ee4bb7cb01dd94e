// internal/services/download_service_test.go
package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vendora/backend/internal/config"
	"github.com/vendora/backend/internal/models"
	"github.com/vendora/backend/internal/security"
	"github.com/vendora/backend/internal/services"
	"github.com/vendora/backend/internal/store"
)

const (
	browserUA  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"
	accessCode = "A1B2C3"
)

var browserReq = services.RequestContext{IP: "93.184.216.34", UserAgent: browserUA}

type downloadFixture struct {
	store     *store.Memory
	downloads *services.DownloadService
}

func newDownloadFixture(t *testing.T, policy security.Policy) *downloadFixture {
	t.Helper()

	mem := store.NewMemory()
	audit := services.NewAuditService(mem)
	storage, err := services.NewStorageService(config.AWSConfig{})
	require.NoError(t, err)

	limiter := security.NewLimiter(security.NewMemoryWindowStore(), policy)
	classifier := security.NewClassifier(false, 5)

	downloads := services.NewDownloadService(mem, limiter, classifier, audit, storage, config.SecurityConfig{
		PiracyLookbackWindow: 15 * time.Minute,
	})
	return &downloadFixture{store: mem, downloads: downloads}
}

func generousPolicy() security.Policy {
	return security.Policy{Window: time.Minute, Max: 1000}
}

// seedToken creates a token whose access code is already consumed unless
// codePending is set.
func (f *downloadFixture) seedToken(t *testing.T, codePending bool, mutate func(*models.DownloadToken)) *models.DownloadToken {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(accessCode), bcrypt.MinCost)
	require.NoError(t, err)

	token := &models.DownloadToken{
		Token:          "feedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedface",
		OrderID:        uuid.New(),
		ProductID:      uuid.New(),
		CustomerEmail:  "buyer@example.com",
		FileName:       "product.zip",
		FileURL:        "https://files.example.com/product.zip",
		FileSize:       1024,
		AccessCodeHash: string(hash),
		AccessCodeUsed: !codePending,
		MaxDownloads:   5,
		ExpiresAt:      time.Now().Add(time.Hour),
		AccessType:     models.AccessTypeStandard,
		IsActive:       true,
	}
	if mutate != nil {
		mutate(token)
	}
	require.NoError(t, f.store.CreateToken(context.Background(), token))
	return token
}

func TestAuthorizeRejectsMalformedToken(t *testing.T) {
	f := newDownloadFixture(t, generousPolicy())

	for _, tokenValue := range []string{
		"",
		"short",
		"FEEDFACEFEEDFACEFEEDFACEFEEDFACEFEEDFACEFEEDFACEFEEDFACEFEEDFACE",
		"zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz",
		"feedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedfac",
	} {
		_, err := f.downloads.Authorize(context.Background(), tokenValue, "", browserReq)
		assert.ErrorIs(t, err, services.ErrMalformedToken, "token %q", tokenValue)
	}
}

func TestAuthorizeRateLimitsByClient(t *testing.T) {
	f := newDownloadFixture(t, security.Policy{Window: time.Minute, Max: 2})
	token := f.seedToken(t, false, nil)

	ctx := context.Background()
	_, err := f.downloads.Authorize(ctx, token.Token, "", browserReq)
	require.NoError(t, err)
	_, err = f.downloads.Authorize(ctx, token.Token, "", browserReq)
	require.NoError(t, err)

	_, err = f.downloads.Authorize(ctx, token.Token, "", browserReq)
	assert.ErrorIs(t, err, services.ErrRateLimited)

	// A rejected request must not consume quota.
	stored, err := f.store.GetToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.DownloadCount)

	// A different client fingerprint has its own window.
	_, err = f.downloads.Authorize(ctx, token.Token, "", services.RequestContext{IP: "203.0.113.7", UserAgent: browserUA})
	assert.NoError(t, err)
}

func TestAuthorizeBlocksAutomationBeforeTokenLookup(t *testing.T) {
	f := newDownloadFixture(t, generousPolicy())
	token := f.seedToken(t, false, nil)

	_, err := f.downloads.Authorize(context.Background(), token.Token, "", services.RequestContext{
		IP: "93.184.216.34", UserAgent: "curl/8.4.0",
	})
	assert.ErrorIs(t, err, services.ErrBotDetected)

	// The bot rejection happens before token state is touched.
	stored, err := f.store.GetToken(context.Background(), token.Token)
	require.NoError(t, err)
	assert.False(t, stored.SecurityFlags.SuspiciousActivity)
	assert.Equal(t, 0, stored.DownloadCount)
}

func TestAuthorizeDetectsExcessiveIPDownloads(t *testing.T) {
	f := newDownloadFixture(t, generousPolicy())
	token := f.seedToken(t, false, nil)
	ctx := context.Background()

	// Six prior successful downloads from this IP, one over the ceiling.
	for i := 0; i < 6; i++ {
		require.NoError(t, f.store.RecordAudit(ctx, &models.AuditLog{
			EventType:  models.AuditEventDownload,
			Success:    true,
			ClientInfo: models.ClientInfo{IP: browserReq.IP},
			OccurredAt: time.Now(),
		}))
	}

	_, err := f.downloads.Authorize(ctx, token.Token, "", browserReq)
	assert.ErrorIs(t, err, services.ErrPiracyDetected)
}

func TestAuthorizeUnknownToken(t *testing.T) {
	f := newDownloadFixture(t, generousPolicy())

	_, err := f.downloads.Authorize(context.Background(),
		"feedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedface", "", browserReq)
	assert.ErrorIs(t, err, services.ErrTokenNotFound)
}

func TestAuthorizeInvalidTokenPrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("limit beats expiry", func(t *testing.T) {
		f := newDownloadFixture(t, generousPolicy())
		token := f.seedToken(t, false, func(tok *models.DownloadToken) {
			tok.DownloadCount = 5
			tok.ExpiresAt = time.Now().Add(-time.Hour)
		})
		_, err := f.downloads.Authorize(ctx, token.Token, "", browserReq)
		assert.ErrorIs(t, err, services.ErrDownloadLimitExceeded)
	})

	t.Run("expiry beats deactivation", func(t *testing.T) {
		f := newDownloadFixture(t, generousPolicy())
		token := f.seedToken(t, false, func(tok *models.DownloadToken) {
			tok.ExpiresAt = time.Now().Add(-time.Hour)
			tok.IsActive = false
		})
		_, err := f.downloads.Authorize(ctx, token.Token, "", browserReq)
		assert.ErrorIs(t, err, services.ErrTokenExpired)
	})

	t.Run("deactivated", func(t *testing.T) {
		f := newDownloadFixture(t, generousPolicy())
		token := f.seedToken(t, false, func(tok *models.DownloadToken) {
			tok.IsActive = false
		})
		_, err := f.downloads.Authorize(ctx, token.Token, "", browserReq)
		assert.ErrorIs(t, err, services.ErrTokenDeactivated)
	})
}

func TestAuthorizeAccessCodeGate(t *testing.T) {
	ctx := context.Background()

	t.Run("required on first download", func(t *testing.T) {
		f := newDownloadFixture(t, generousPolicy())
		token := f.seedToken(t, true, nil)
		_, err := f.downloads.Authorize(ctx, token.Token, "", browserReq)
		assert.ErrorIs(t, err, services.ErrAccessCodeRequired)
	})

	t.Run("wrong code refused without consuming it", func(t *testing.T) {
		f := newDownloadFixture(t, generousPolicy())
		token := f.seedToken(t, true, nil)

		_, err := f.downloads.Authorize(ctx, token.Token, "WRONG1", browserReq)
		assert.ErrorIs(t, err, services.ErrAccessCodeInvalid)

		stored, err := f.store.GetToken(ctx, token.Token)
		require.NoError(t, err)
		assert.False(t, stored.AccessCodeUsed)
		assert.Equal(t, 0, stored.DownloadCount)
	})

	t.Run("correct code consumed once", func(t *testing.T) {
		f := newDownloadFixture(t, generousPolicy())
		token := f.seedToken(t, true, nil)

		handle, err := f.downloads.Authorize(ctx, token.Token, accessCode, browserReq)
		require.NoError(t, err)
		require.NotNil(t, handle)

		stored, err := f.store.GetToken(ctx, token.Token)
		require.NoError(t, err)
		assert.True(t, stored.AccessCodeUsed)

		// Later downloads need no code.
		_, err = f.downloads.Authorize(ctx, token.Token, "", browserReq)
		assert.NoError(t, err)
	})
}

func TestAuthorizeSuspiciousRequestPoisonsToken(t *testing.T) {
	f := newDownloadFixture(t, generousPolicy())
	token := f.seedToken(t, false, nil)
	ctx := context.Background()

	// A short user agent is suspicious without being bot-like, so the
	// request passes the early bot check and reaches the poisoning step.
	_, err := f.downloads.Authorize(ctx, token.Token, "", services.RequestContext{
		IP: "93.184.216.34", UserAgent: "Mozilla",
	})
	assert.ErrorIs(t, err, services.ErrSecurityBlocked)

	stored, err := f.store.GetToken(ctx, token.Token)
	require.NoError(t, err)
	assert.True(t, stored.SecurityFlags.SuspiciousActivity)
	assert.False(t, stored.IsActive)
	assert.Equal(t, "Missing or short user agent", stored.SecurityFlags.FlaggedReason)
	assert.Equal(t, 0, stored.DownloadCount, "a blocked request never consumes quota")

	// The poisoned token refuses even clean requests afterwards.
	_, err = f.downloads.Authorize(ctx, token.Token, "", browserReq)
	assert.ErrorIs(t, err, services.ErrTokenDeactivated)
}

func TestAuthorizeSuccess(t *testing.T) {
	f := newDownloadFixture(t, generousPolicy())
	token := f.seedToken(t, false, func(tok *models.DownloadToken) {
		tok.Watermark = models.WatermarkData{
			WatermarkID:   "wm-1234",
			WatermarkHash: "abcdef",
			WatermarkedAt: time.Now().Format(time.RFC3339),
		}
	})
	ctx := context.Background()

	handle, err := f.downloads.Authorize(ctx, token.Token, "", browserReq)
	require.NoError(t, err)

	assert.Equal(t, "product.zip", handle.FileName)
	assert.Equal(t, int64(1024), handle.FileSize)
	assert.Equal(t, "https://files.example.com/product.zip", handle.URL)
	assert.Equal(t, `attachment; filename="product.zip"`, handle.Headers["Content-Disposition"])
	assert.Equal(t, "no-cache, no-store, must-revalidate", handle.Headers["Cache-Control"])
	assert.Equal(t, "wm-1234", handle.Headers["X-Watermark-ID"])

	stored, err := f.store.GetToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.DownloadCount)
	assert.Equal(t, browserReq.IP, stored.ClientInfo.IP)
	assert.Equal(t, "Windows", stored.ClientInfo.Platform)
	assert.Equal(t, "Chrome", stored.ClientInfo.Browser)
	require.NotNil(t, stored.ClientInfo.FirstAccessedAt)

	// The grant shows up in the audit ledger.
	entries, total, err := f.store.ListAudits(ctx, store.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.True(t, entries[0].Success)
	assert.Equal(t, models.AuditEventDownload, entries[0].EventType)
}

func TestAuthorizeFailureIsAudited(t *testing.T) {
	f := newDownloadFixture(t, generousPolicy())
	token := f.seedToken(t, false, func(tok *models.DownloadToken) {
		tok.ExpiresAt = time.Now().Add(-time.Hour)
	})
	ctx := context.Background()

	_, err := f.downloads.Authorize(ctx, token.Token, "", browserReq)
	require.ErrorIs(t, err, services.ErrTokenExpired)

	entries, _, err := f.store.ListAudits(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Contains(t, entries[0].ErrorMessage, "TOKEN_EXPIRED")
}

func TestAuthorizeConcurrentRequestsHonorQuota(t *testing.T) {
	f := newDownloadFixture(t, generousPolicy())
	token := f.seedToken(t, false, func(tok *models.DownloadToken) {
		tok.MaxDownloads = 3
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mtx sync.Mutex
	granted := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.downloads.Authorize(ctx, token.Token, "", browserReq); err == nil {
				mtx.Lock()
				granted++
				mtx.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)

	stored, err := f.store.GetToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.DownloadCount)
}

func TestTokenInfoDoesNotConsume(t *testing.T) {
	f := newDownloadFixture(t, generousPolicy())
	token := f.seedToken(t, true, nil)

	info, err := f.downloads.TokenInfo(context.Background(), token.Token)
	require.NoError(t, err)
	assert.Equal(t, 0, info.DownloadCount)
	assert.False(t, info.AccessCodeUsed)

	stored, err := f.store.GetToken(context.Background(), token.Token)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.DownloadCount)
}

func TestDeactivateRevokesToken(t *testing.T) {
	f := newDownloadFixture(t, generousPolicy())
	token := f.seedToken(t, false, nil)
	ctx := context.Background()

	require.NoError(t, f.downloads.Deactivate(ctx, token.Token))

	_, err := f.downloads.Authorize(ctx, token.Token, "", browserReq)
	assert.ErrorIs(t, err, services.ErrTokenDeactivated)
}
