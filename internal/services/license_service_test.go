// internal/services/license_service_test.go
package services_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendora/backend/internal/config"
	"github.com/vendora/backend/internal/models"
	"github.com/vendora/backend/internal/security"
	"github.com/vendora/backend/internal/services"
	"github.com/vendora/backend/internal/store"
)

var licenseKeyRe = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

const testDeviceID = "device-1234567890"

type licenseFixture struct {
	store    *store.Memory
	licenses *services.LicenseService
}

func deliveryDefaults() config.DeliveryConfig {
	return config.DeliveryConfig{
		DefaultExpirationHours:    24,
		EnterpriseExpirationHours: 72,
		DefaultMaxDownloads:       5,
		DefaultMaxActivations:     3,
		LicenseValidityDays:       365,
		WatermarkThreshold:        50,
	}
}

func newLicenseFixture(t *testing.T, activationPolicy security.Policy) *licenseFixture {
	t.Helper()

	mem := store.NewMemory()
	audit := services.NewAuditService(mem)
	notification := services.NewNotificationService(config.EmailConfig{}, "http://localhost:8080")

	windows := security.NewMemoryWindowStore()
	validationLimiter := security.NewLimiter(windows, security.Policy{Window: time.Minute, Max: 1000})
	activationLimiter := security.NewLimiter(windows, activationPolicy)

	licenses := services.NewLicenseService(mem, audit, notification, validationLimiter, activationLimiter, deliveryDefaults())
	return &licenseFixture{store: mem, licenses: licenses}
}

func (f *licenseFixture) seedLicense(t *testing.T, mutate func(*models.License)) *models.License {
	t.Helper()

	license := &models.License{
		OrderID:        uuid.New(),
		ProductID:      uuid.New(),
		LicenseKey:     "ABCD-1234-EF56-7890",
		CustomerEmail:  "buyer@example.com",
		LicenseType:    models.LicenseTypePersonal,
		Status:         models.LicenseStatusActive,
		MaxActivations: 3,
		ExpiresAt:      time.Now().Add(365 * 24 * time.Hour),
		Version:        "1.0.0",
	}
	if mutate != nil {
		mutate(license)
	}
	require.NoError(t, f.store.CreateLicense(context.Background(), license))
	return license
}

func TestCreateLicense(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())
	ctx := context.Background()

	order := &models.Order{
		BaseModel:     models.BaseModel{ID: uuid.New()},
		CustomerEmail: "buyer@example.com",
	}
	product := &models.Product{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Type:      models.ProductTypeDigital,
		DigitalMeta: models.DigitalMeta{
			LicenseType:    models.LicenseTypeCommercial,
			MaxActivations: 5,
			Version:        "2.1.0",
			Features:       []string{"export", "api"},
		},
	}

	license, err := f.licenses.CreateLicense(ctx, order, product)
	require.NoError(t, err)

	assert.Regexp(t, licenseKeyRe, license.LicenseKey)
	assert.Equal(t, models.LicenseTypeCommercial, license.LicenseType)
	assert.Equal(t, models.LicenseStatusActive, license.Status)
	assert.Equal(t, 5, license.MaxActivations)
	assert.Equal(t, 0, license.ActivationCount)
	assert.Equal(t, "2.1.0", license.Version)

	// Validity runs from now for the configured number of days.
	expectedExpiry := time.Now().AddDate(0, 0, 365)
	assert.WithinDuration(t, expectedExpiry, license.ExpiresAt, time.Minute)
}

func TestActivateBindsDevice(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())
	license := f.seedLicense(t, nil)
	ctx := context.Background()

	updated, activation, err := f.licenses.Activate(ctx, license.LicenseKey, testDeviceID, "93.184.216.34", browserUA)
	require.NoError(t, err)

	assert.Equal(t, 1, updated.ActivationCount)
	require.NotNil(t, activation)
	assert.Equal(t, testDeviceID, activation.DeviceID)
	assert.Equal(t, "Windows", activation.DeviceInfo.Platform)
	assert.True(t, activation.IsActive)
}

func TestActivateIsIdempotentPerDevice(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())
	license := f.seedLicense(t, nil)
	ctx := context.Background()

	_, _, err := f.licenses.Activate(ctx, license.LicenseKey, testDeviceID, "93.184.216.34", browserUA)
	require.NoError(t, err)

	updated, _, err := f.licenses.Activate(ctx, license.LicenseKey, testDeviceID, "93.184.216.34", browserUA)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ActivationCount, "re-activating the same device consumes no slot")
	assert.Len(t, updated.Activations, 1)
}

func TestActivateEnforcesCap(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())
	license := f.seedLicense(t, func(l *models.License) { l.MaxActivations = 2 })
	ctx := context.Background()

	_, _, err := f.licenses.Activate(ctx, license.LicenseKey, "device-aaaaaaaaaa", "93.184.216.34", browserUA)
	require.NoError(t, err)
	_, _, err = f.licenses.Activate(ctx, license.LicenseKey, "device-bbbbbbbbbb", "93.184.216.34", browserUA)
	require.NoError(t, err)

	_, _, err = f.licenses.Activate(ctx, license.LicenseKey, "device-cccccccccc", "93.184.216.34", browserUA)
	assert.ErrorIs(t, err, services.ErrActivationLimitReached)

	stored, err := f.store.GetLicense(ctx, license.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ActivationCount)
}

func TestDeactivateFreesSlot(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())
	license := f.seedLicense(t, func(l *models.License) { l.MaxActivations = 1 })
	ctx := context.Background()

	_, _, err := f.licenses.Activate(ctx, license.LicenseKey, "device-aaaaaaaaaa", "93.184.216.34", browserUA)
	require.NoError(t, err)

	_, _, err = f.licenses.Activate(ctx, license.LicenseKey, "device-bbbbbbbbbb", "93.184.216.34", browserUA)
	require.ErrorIs(t, err, services.ErrActivationLimitReached)

	updated, err := f.licenses.Deactivate(ctx, license.LicenseKey, "device-aaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, 0, updated.ActivationCount)

	_, _, err = f.licenses.Activate(ctx, license.LicenseKey, "device-bbbbbbbbbb", "93.184.216.34", browserUA)
	assert.NoError(t, err, "a freed slot is usable by a new device")
}

func TestDeactivateUnknownDevice(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())
	license := f.seedLicense(t, nil)

	_, err := f.licenses.Deactivate(context.Background(), license.LicenseKey, "device-unknown12345")
	assert.ErrorIs(t, err, services.ErrDeviceNotActivated)
}

func TestActivateRejectsInvalidDeviceID(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())
	license := f.seedLicense(t, nil)

	for _, deviceID := range []string{"", "short", "has spaces in it", "bad!chars#here$"} {
		_, _, err := f.licenses.Activate(context.Background(), license.LicenseKey, deviceID, "93.184.216.34", browserUA)
		assert.ErrorIs(t, err, services.ErrInvalidDeviceID, "device id %q", deviceID)
	}
}

func TestActivateThrottlesPerLicenseAndIP(t *testing.T) {
	f := newLicenseFixture(t, security.Policy{Window: 15 * time.Minute, Max: 3})
	license := f.seedLicense(t, func(l *models.License) { l.MaxActivations = 10 })
	ctx := context.Background()

	for i, deviceID := range []string{"device-aaaaaaaaaa", "device-bbbbbbbbbb", "device-cccccccccc"} {
		_, _, err := f.licenses.Activate(ctx, license.LicenseKey, deviceID, "93.184.216.34", browserUA)
		require.NoError(t, err, "attempt %d", i+1)
	}

	_, _, err := f.licenses.Activate(ctx, license.LicenseKey, "device-dddddddddd", "93.184.216.34", browserUA)
	assert.ErrorIs(t, err, services.ErrActivationRateLimited)

	// A different IP is not caught by this license's window.
	_, _, err = f.licenses.Activate(ctx, license.LicenseKey, "device-dddddddddd", "203.0.113.7", browserUA)
	assert.NoError(t, err)
}

func TestActivateRejectsInvalidLicense(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*models.License)
		reason string
	}{
		{"suspended", func(l *models.License) { l.Status = models.LicenseStatusSuspended }, "License is suspended"},
		{"revoked", func(l *models.License) { l.Status = models.LicenseStatusRevoked }, "License has been revoked"},
		{"expired", func(l *models.License) { l.ExpiresAt = time.Now().Add(-time.Hour) }, "License has expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newLicenseFixture(t, generousPolicy())
			license := f.seedLicense(t, tc.mutate)

			_, _, err := f.licenses.Activate(ctx, license.LicenseKey, testDeviceID, "93.184.216.34", browserUA)
			svcErr, ok := services.AsServiceError(err)
			require.True(t, ok)
			assert.Equal(t, "LICENSE_INVALID", svcErr.Code)
			assert.Equal(t, tc.reason, svcErr.Message)
		})
	}
}

func TestActivateUnknownLicense(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())

	_, _, err := f.licenses.Activate(context.Background(), "0000-0000-0000-0000", testDeviceID, "93.184.216.34", browserUA)
	assert.ErrorIs(t, err, services.ErrLicenseNotFound)
}

func TestValidateReportsState(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())
	license := f.seedLicense(t, nil)
	ctx := context.Background()

	_, _, err := f.licenses.Activate(ctx, license.LicenseKey, testDeviceID, "93.184.216.34", browserUA)
	require.NoError(t, err)

	result, err := f.licenses.Validate(ctx, license.LicenseKey, testDeviceID, "93.184.216.34")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.DeviceActivated)
	assert.Equal(t, 1, result.ActivationCount)
	assert.Equal(t, 3, result.MaxActivations)

	result, err = f.licenses.Validate(ctx, license.LicenseKey, "device-other123456", "93.184.216.34")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.False(t, result.DeviceActivated)
}

func TestValidateAppliesLazyExpiry(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())
	license := f.seedLicense(t, func(l *models.License) {
		l.ExpiresAt = time.Now().Add(-time.Hour)
	})
	ctx := context.Background()

	result, err := f.licenses.Validate(ctx, license.LicenseKey, "", "93.184.216.34")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, models.LicenseStatusExpired, result.Status)
	assert.Equal(t, "License has expired", result.Reason)

	// The transition is persisted, not just reported.
	stored, err := f.store.GetLicense(ctx, license.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusExpired, stored.Status)
}

func TestSetStatus(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())
	license := f.seedLicense(t, nil)
	ctx := context.Background()

	updated, err := f.licenses.SetStatus(ctx, license.LicenseKey, models.LicenseStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusSuspended, updated.Status)

	_, _, err = f.licenses.Activate(ctx, license.LicenseKey, testDeviceID, "93.184.216.34", browserUA)
	svcErr, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, "LICENSE_INVALID", svcErr.Code)
}

func TestActivationIsAudited(t *testing.T) {
	f := newLicenseFixture(t, generousPolicy())
	license := f.seedLicense(t, nil)
	ctx := context.Background()

	_, _, err := f.licenses.Activate(ctx, license.LicenseKey, testDeviceID, "93.184.216.34", browserUA)
	require.NoError(t, err)

	entries, _, err := f.store.ListAudits(ctx, store.AuditFilter{EventType: models.AuditEventActivation})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, license.LicenseKey, entries[0].LicenseKey)
}
