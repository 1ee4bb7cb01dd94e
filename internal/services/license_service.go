// internal/services/license_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vendora/backend/internal/config"
	"github.com/vendora/backend/internal/metrics"
	"github.com/vendora/backend/internal/models"
	"github.com/vendora/backend/internal/security"
	"github.com/vendora/backend/internal/store"
	"github.com/vendora/backend/internal/utils"
)

// LicenseService manages the license lifecycle: creation at fulfillment,
// validation and device activation from installed software, deactivation,
// and the operator status changes.
type LicenseService struct {
	store             store.Store
	audit             *AuditService
	notification      *NotificationService
	validationLimiter *security.Limiter
	activationLimiter *security.Limiter
	cfg               config.DeliveryConfig
	logger            *logrus.Entry
}

func NewLicenseService(
	st store.Store,
	audit *AuditService,
	notification *NotificationService,
	validationLimiter *security.Limiter,
	activationLimiter *security.Limiter,
	cfg config.DeliveryConfig,
) *LicenseService {
	return &LicenseService{
		store:             st,
		audit:             audit,
		notification:      notification,
		validationLimiter: validationLimiter,
		activationLimiter: activationLimiter,
		cfg:               cfg,
		logger:            logrus.WithField("component", "license"),
	}
}

// ValidationResult is the answer to "may this installation run".
type ValidationResult struct {
	Valid           bool                 `json:"valid"`
	Reason          string               `json:"reason,omitempty"`
	LicenseType     models.LicenseType   `json:"license_type,omitempty"`
	Status          models.LicenseStatus `json:"status,omitempty"`
	ExpiresAt       *time.Time           `json:"expires_at,omitempty"`
	ActivationCount int                  `json:"activation_count"`
	MaxActivations  int                  `json:"max_activations"`
	DeviceActivated bool                 `json:"device_activated"`
	Features        []string             `json:"features,omitempty"`
	Version         string               `json:"version,omitempty"`
}

// CreateLicense mints a license for a fulfilled order. Validity and the
// activation cap come from the product, falling back to service defaults.
func (s *LicenseService) CreateLicense(ctx context.Context, order *models.Order, product *models.Product) (*models.License, error) {
	key, err := utils.GenerateLicenseKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate license key: %w", err)
	}

	maxActivations := product.DigitalMeta.MaxActivations
	if maxActivations <= 0 {
		maxActivations = s.cfg.DefaultMaxActivations
	}

	license := &models.License{
		OrderID:        order.ID,
		ProductID:      product.ID,
		LicenseKey:     key,
		CustomerEmail:  order.CustomerEmail,
		LicenseType:    product.DigitalMeta.LicenseType,
		Status:         models.LicenseStatusActive,
		MaxActivations: maxActivations,
		ExpiresAt:      time.Now().AddDate(0, 0, s.cfg.LicenseValidityDays),
		Features:       product.DigitalMeta.Features,
		Version:        product.DigitalMeta.Version,
	}

	if err := s.store.CreateLicense(ctx, license); err != nil {
		return nil, fmt.Errorf("failed to persist license: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"license_type": license.LicenseType,
		"expires_at":   license.ExpiresAt,
	}).Info("License created")

	return license, nil
}

// Validate answers whether the license may be used, without changing its
// activation state. Expiry is applied lazily here: an active license past
// its expiry date is transitioned to expired before the answer is computed.
func (s *LicenseService) Validate(ctx context.Context, licenseKey, deviceID, ip string) (*ValidationResult, error) {
	if !s.validationLimiter.Allow(ctx, utils.HashString(ip)) {
		return nil, ErrRateLimited
	}
	if deviceID != "" && !utils.IsValidDeviceID(deviceID) {
		return nil, ErrInvalidDeviceID
	}

	license, err := s.getLicense(ctx, licenseKey)
	if err != nil {
		return nil, err
	}

	if license.Status == models.LicenseStatusActive && !license.ExpiresAt.After(time.Now()) {
		license, err = s.store.MutateLicense(ctx, licenseKey, func(l *models.License) error {
			if l.Status == models.LicenseStatusActive && !l.ExpiresAt.After(time.Now()) {
				l.Status = models.LicenseStatusExpired
			}
			return nil
		})
		if err != nil {
			return nil, ErrStorageFailure
		}
	}

	result := &ValidationResult{
		Valid:           license.IsValid(),
		LicenseType:     license.LicenseType,
		Status:          license.Status,
		ExpiresAt:       &license.ExpiresAt,
		ActivationCount: license.ActivationCount,
		MaxActivations:  license.MaxActivations,
		DeviceActivated: deviceID != "" && license.ActiveActivation(deviceID) != nil,
		Features:        license.Features,
		Version:         license.Version,
	}
	if !result.Valid {
		result.Reason = invalidLicenseReason(license)
	}
	return result, nil
}

// Activate binds the license to a device. Re-activating an already-active
// device succeeds without consuming a slot; a new device past the cap is
// refused. The whole decision runs inside one atomic license mutation.
func (s *LicenseService) Activate(ctx context.Context, licenseKey, deviceID, ip, userAgent string) (*models.License, *models.Activation, error) {
	if !utils.IsValidDeviceID(deviceID) {
		return nil, nil, ErrInvalidDeviceID
	}
	if !s.activationLimiter.Allow(ctx, security.ActivationKey(licenseKey, ip)) {
		metrics.ActivationsTotal.WithLabelValues("throttled").Inc()
		return nil, nil, ErrActivationRateLimited
	}

	var activation *models.Activation
	var alreadyActive bool

	license, err := s.store.MutateLicense(ctx, licenseKey, func(l *models.License) error {
		if l.Status == models.LicenseStatusActive && !l.ExpiresAt.After(time.Now()) {
			l.Status = models.LicenseStatusExpired
		}
		if !l.IsValid() {
			return LicenseInvalidError(invalidLicenseReason(l))
		}

		if existing := l.ActiveActivation(deviceID); existing != nil {
			alreadyActive = true
			return nil
		}

		if l.ActivationCount >= l.MaxActivations {
			return ErrActivationLimitReached
		}

		l.Activations = append(l.Activations, models.Activation{
			LicenseID: l.ID,
			DeviceID:  deviceID,
			DeviceInfo: models.DeviceInfo{
				Platform: security.DerivePlatform(userAgent),
				Browser:  security.DeriveBrowser(userAgent),
				IP:       ip,
			},
			ActivatedAt: time.Now(),
			IsActive:    true,
		})
		l.RecomputeActivationCount()
		return nil
	})
	if err != nil {
		metrics.ActivationsTotal.WithLabelValues("rejected").Inc()
		s.recordActivationAudit(ctx, licenseKey, deviceID, ip, userAgent, false, err)
		if svcErr, ok := AsServiceError(err); ok {
			return nil, nil, svcErr
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrLicenseNotFound
		}
		return nil, nil, ErrStorageFailure
	}

	activation = license.ActiveActivation(deviceID)

	s.recordActivationAudit(ctx, licenseKey, deviceID, ip, userAgent, true, nil)
	metrics.ActivationsTotal.WithLabelValues("success").Inc()

	s.logger.WithFields(logrus.Fields{
		"device_id":        deviceID,
		"activation_count": license.ActivationCount,
		"max_activations":  license.MaxActivations,
		"idempotent":       alreadyActive,
	}).Info("License activated")

	if !alreadyActive && activation != nil {
		go s.notifyActivation(license, activation)
	}

	return license, activation, nil
}

// Deactivate releases the device's slot so another device can activate.
func (s *LicenseService) Deactivate(ctx context.Context, licenseKey, deviceID string) (*models.License, error) {
	if !utils.IsValidDeviceID(deviceID) {
		return nil, ErrInvalidDeviceID
	}

	license, err := s.store.MutateLicense(ctx, licenseKey, func(l *models.License) error {
		existing := l.ActiveActivation(deviceID)
		if existing == nil {
			return ErrDeviceNotActivated
		}
		existing.IsActive = false
		l.RecomputeActivationCount()
		return nil
	})
	if err != nil {
		if svcErr, ok := AsServiceError(err); ok {
			return nil, svcErr
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, ErrStorageFailure
	}

	s.logger.WithFields(logrus.Fields{
		"device_id":        deviceID,
		"activation_count": license.ActivationCount,
	}).Info("Device deactivated")

	return license, nil
}

// SetStatus is the operator surface for suspending, revoking or reinstating
// a license.
func (s *LicenseService) SetStatus(ctx context.Context, licenseKey string, status models.LicenseStatus) (*models.License, error) {
	license, err := s.store.MutateLicense(ctx, licenseKey, func(l *models.License) error {
		l.Status = status
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, ErrStorageFailure
	}

	s.logger.WithFields(logrus.Fields{
		"license_key": licenseKey,
		"status":      status,
	}).Warn("License status changed")

	return license, nil
}

// Get returns the license by key, translating store errors.
func (s *LicenseService) Get(ctx context.Context, licenseKey string) (*models.License, error) {
	return s.getLicense(ctx, licenseKey)
}

func (s *LicenseService) getLicense(ctx context.Context, licenseKey string) (*models.License, error) {
	license, err := s.store.GetLicense(ctx, licenseKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, ErrStorageFailure
	}
	return license, nil
}

func (s *LicenseService) recordActivationAudit(ctx context.Context, licenseKey, deviceID, ip, userAgent string, success bool, cause error) {
	entry := &models.AuditLog{
		EventType:  models.AuditEventActivation,
		LicenseKey: licenseKey,
		Success:    success,
		ClientInfo: security.BuildClientInfo(ip, userAgent),
	}
	if cause != nil {
		entry.ErrorMessage = appendDeviceID(cause.Error(), deviceID)
	}
	if license, err := s.store.GetLicense(ctx, licenseKey); err == nil {
		entry.OrderID = license.OrderID
		entry.ProductID = license.ProductID
		entry.CustomerEmail = license.CustomerEmail
	}
	s.audit.Record(ctx, entry)
}

func (s *LicenseService) notifyActivation(license *models.License, activation *models.Activation) {
	productName := "your product"
	if product, err := s.store.GetProduct(context.Background(), license.ProductID); err == nil {
		productName = product.Name
	}
	if err := s.notification.SendActivationEmail(license, activation, productName); err != nil {
		s.logger.WithError(err).Error("Failed to send activation email")
	}
}

func invalidLicenseReason(l *models.License) string {
	switch l.Status {
	case models.LicenseStatusSuspended:
		return "License is suspended"
	case models.LicenseStatusRevoked:
		return "License has been revoked"
	case models.LicenseStatusExpired:
		return "License has expired"
	default:
		if !l.ExpiresAt.After(time.Now()) {
			return "License has expired"
		}
		return "License is not valid"
	}
}

func appendDeviceID(msg, deviceID string) string {
	if deviceID == "" {
		return msg
	}
	if msg == "" {
		return "device " + deviceID
	}
	return msg + " (device " + deviceID + ")"
}
