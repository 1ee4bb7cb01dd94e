// internal/services/delivery_service_test.go
package services_test

import (
	"context"
	"regexp"
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

var (
	tokenRe      = regexp.MustCompile(`^[a-f0-9]{64}$`)
	accessCodeRe = regexp.MustCompile(`^[0-9A-F]{6}$`)
)

type deliveryFixture struct {
	store    *store.Memory
	delivery *services.DeliveryService
}

func newDeliveryFixture(t *testing.T) *deliveryFixture {
	t.Helper()

	mem := store.NewMemory()
	audit := services.NewAuditService(mem)
	notification := services.NewNotificationService(config.EmailConfig{}, "http://localhost:8080")

	windows := security.NewMemoryWindowStore()
	validationLimiter := security.NewLimiter(windows, generousPolicy())
	activationLimiter := security.NewLimiter(windows, generousPolicy())
	licenses := services.NewLicenseService(mem, audit, notification, validationLimiter, activationLimiter, deliveryDefaults())

	delivery := services.NewDeliveryService(mem, licenses, audit, notification, deliveryDefaults())
	return &deliveryFixture{store: mem, delivery: delivery}
}

func (f *deliveryFixture) seedDigitalProduct(t *testing.T, price float64, mutate func(*models.Product)) *models.Product {
	t.Helper()

	product := &models.Product{
		Name:  "Vendora Studio",
		Price: price,
		Type:  models.ProductTypeDigital,
		DigitalMeta: models.DigitalMeta{
			FileURL:         "s3://files/studio.zip",
			FileName:        "studio.zip",
			FileSize:        4096,
			DownloadLimit:   5,
			ExpirationHours: 24,
			LicenseType:     models.LicenseTypePersonal,
			MaxActivations:  3,
			Version:         "1.0.0",
		},
		IsActive: true,
	}
	if mutate != nil {
		mutate(product)
	}
	require.NoError(t, f.store.CreateProduct(context.Background(), product))
	return product
}

func (f *deliveryFixture) seedOrder(t *testing.T, product *models.Product) *models.Order {
	t.Helper()

	order := &models.Order{
		ProductID:     product.ID,
		ProductName:   product.Name,
		ProductType:   product.Type,
		Amount:        product.Price,
		CustomerEmail: "buyer@example.com",
		Status:        models.OrderStatusCompleted,
	}
	require.NoError(t, f.store.CreateOrder(context.Background(), order))
	return order
}

func TestIssueToken(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.seedDigitalProduct(t, 29.99, nil)
	order := f.seedOrder(t, product)

	token, code, err := f.delivery.IssueToken(context.Background(), order, product, false)
	require.NoError(t, err)

	assert.Regexp(t, tokenRe, token.Token)
	assert.Regexp(t, accessCodeRe, code)
	assert.Equal(t, order.ID, token.OrderID)
	assert.Equal(t, "studio.zip", token.FileName)
	assert.Equal(t, 5, token.MaxDownloads)
	assert.Equal(t, models.AccessTypeStandard, token.AccessType)
	assert.True(t, token.IsActive)
	assert.False(t, token.AccessCodeUsed)

	// Only the hash of the access code is stored, and it verifies.
	assert.NotContains(t, token.AccessCodeHash, code)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(token.AccessCodeHash), []byte(code)))

	assert.WithinDuration(t, time.Now().Add(24*time.Hour), token.ExpiresAt, time.Minute)
}

func TestIssueTokenWatermarking(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()

	t.Run("below threshold, no watermark", func(t *testing.T) {
		product := f.seedDigitalProduct(t, 29.99, nil)
		order := f.seedOrder(t, product)
		token, _, err := f.delivery.IssueToken(ctx, order, product, false)
		require.NoError(t, err)
		assert.False(t, token.HasWatermark())
	})

	t.Run("above threshold", func(t *testing.T) {
		product := f.seedDigitalProduct(t, 99.99, nil)
		order := f.seedOrder(t, product)
		token, _, err := f.delivery.IssueToken(ctx, order, product, false)
		require.NoError(t, err)
		assert.True(t, token.HasWatermark())
		assert.NotEmpty(t, token.Watermark.WatermarkID)
		assert.Len(t, token.Watermark.WatermarkHash, 16)
	})

	t.Run("forced", func(t *testing.T) {
		product := f.seedDigitalProduct(t, 9.99, nil)
		order := f.seedOrder(t, product)
		token, _, err := f.delivery.IssueToken(ctx, order, product, true)
		require.NoError(t, err)
		assert.True(t, token.HasWatermark())
	})
}

func TestIssueTokenAccessTypeTiers(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()

	product := f.seedDigitalProduct(t, 199.0, func(p *models.Product) {
		p.DigitalMeta.LicenseType = models.LicenseTypeEnterprise
		p.DigitalMeta.ExpirationHours = 0
	})
	order := f.seedOrder(t, product)

	token, _, err := f.delivery.IssueToken(ctx, order, product, false)
	require.NoError(t, err)
	assert.Equal(t, models.AccessTypeEnterprise, token.AccessType)
	assert.WithinDuration(t, time.Now().Add(72*time.Hour), token.ExpiresAt, time.Minute,
		"enterprise deliveries get the extended window when the product does not specify one")
}

func TestProcessDigitalDelivery(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.seedDigitalProduct(t, 59.99, nil)
	order := f.seedOrder(t, product)
	ctx := context.Background()

	token, license, err := f.delivery.ProcessDigitalDelivery(ctx, order)
	require.NoError(t, err)

	require.NotNil(t, token)
	assert.Equal(t, order.ID, token.OrderID)
	assert.True(t, token.HasWatermark(), "59.99 is above the watermark threshold")

	require.NotNil(t, license)
	assert.Regexp(t, licenseKeyRe, license.LicenseKey)
	assert.Equal(t, order.ID, license.OrderID)
	assert.Equal(t, 3, license.MaxActivations)

	entries, _, err := f.store.ListAudits(ctx, store.AuditFilter{EventType: models.AuditEventDelivery})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, token.Token, entries[0].DownloadToken)
	assert.Equal(t, license.LicenseKey, entries[0].LicenseKey)
}

func TestProcessDigitalDeliveryRejectsPhysicalProduct(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.seedDigitalProduct(t, 19.99, func(p *models.Product) {
		p.Type = models.ProductTypePhysical
	})
	order := f.seedOrder(t, product)

	_, _, err := f.delivery.ProcessDigitalDelivery(context.Background(), order)
	assert.Error(t, err)
}

func TestOrderStats(t *testing.T) {
	f := newDeliveryFixture(t)
	product := f.seedDigitalProduct(t, 19.99, nil)
	order := f.seedOrder(t, product)
	ctx := context.Background()

	token, _, err := f.delivery.IssueToken(ctx, order, product, false)
	require.NoError(t, err)
	_, err = f.store.RecordDownload(ctx, token.Token, models.ClientInfo{IP: "1.2.3.4"})
	require.NoError(t, err)

	stats, err := f.delivery.OrderStats(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalDownloads)
	assert.Equal(t, int64(1), stats.UniqueTokens)
	assert.Equal(t, int64(1), stats.ActiveTokens)
	assert.Equal(t, int64(0), stats.ExpiredTokens)
}

func TestOrderStatsUnknownOrderIsEmpty(t *testing.T) {
	f := newDeliveryFixture(t)

	stats, err := f.delivery.OrderStats(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.UniqueTokens)
}
