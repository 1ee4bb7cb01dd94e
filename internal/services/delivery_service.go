// internal/services/delivery_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vendora/backend/internal/config"
	"github.com/vendora/backend/internal/metrics"
	"github.com/vendora/backend/internal/models"
	"github.com/vendora/backend/internal/store"
	"github.com/vendora/backend/internal/utils"
)

// DeliveryService issues download tokens and runs the post-payment
// fulfillment pipeline: token, license, audit entry, customer email.
type DeliveryService struct {
	store        store.Store
	licenses     *LicenseService
	audit        *AuditService
	notification *NotificationService
	cfg          config.DeliveryConfig
	logger       *logrus.Entry
}

func NewDeliveryService(
	st store.Store,
	licenses *LicenseService,
	audit *AuditService,
	notification *NotificationService,
	cfg config.DeliveryConfig,
) *DeliveryService {
	return &DeliveryService{
		store:        st,
		licenses:     licenses,
		audit:        audit,
		notification: notification,
		cfg:          cfg,
		logger:       logrus.WithField("component", "delivery"),
	}
}

// IssueToken creates a download token for a paid order. The plaintext access
// code is returned exactly once for out-of-band delivery; only its bcrypt
// hash is stored.
func (s *DeliveryService) IssueToken(ctx context.Context, order *models.Order, product *models.Product, forceWatermark bool) (*models.DownloadToken, string, error) {
	tokenValue, err := utils.GenerateDownloadToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}
	accessCode, err := utils.GenerateAccessCode()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate access code: %w", err)
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(accessCode), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash access code: %w", err)
	}

	accessType := accessTypeFor(product.DigitalMeta.LicenseType)

	maxDownloads := product.DigitalMeta.DownloadLimit
	if maxDownloads <= 0 {
		maxDownloads = s.cfg.DefaultMaxDownloads
	}

	expirationHours := product.DigitalMeta.ExpirationHours
	if expirationHours <= 0 {
		expirationHours = s.cfg.DefaultExpirationHours
		if accessType == models.AccessTypeEnterprise {
			expirationHours = s.cfg.EnterpriseExpirationHours
		}
	}

	now := time.Now()
	token := &models.DownloadToken{
		Token:          tokenValue,
		OrderID:        order.ID,
		ProductID:      product.ID,
		CustomerEmail:  order.CustomerEmail,
		FileName:       product.DigitalMeta.FileName,
		FileURL:        product.DigitalMeta.FileURL,
		FileSize:       product.DigitalMeta.FileSize,
		AccessCodeHash: string(codeHash),
		MaxDownloads:   maxDownloads,
		ExpiresAt:      now.Add(time.Duration(expirationHours) * time.Hour),
		AccessType:     accessType,
		IsActive:       true,
	}

	if forceWatermark || order.Amount > s.cfg.WatermarkThreshold {
		token.Watermark = models.WatermarkData{
			WatermarkID:   uuid.New().String(),
			WatermarkHash: utils.WatermarkHash(order.CustomerEmail, order.ID.String(), now),
			WatermarkedAt: now.Format(time.RFC3339),
		}
	}

	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, "", fmt.Errorf("failed to persist token: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"product_id":  product.ID,
		"access_type": token.AccessType,
		"watermarked": token.HasWatermark(),
		"expires_at":  token.ExpiresAt,
	}).Info("Download token issued")

	return token, accessCode, nil
}

// ProcessDigitalDelivery fulfills a paid order end to end: token, license,
// audit entry, customer email. Email failures do not undo fulfillment.
func (s *DeliveryService) ProcessDigitalDelivery(ctx context.Context, order *models.Order) (*models.DownloadToken, *models.License, error) {
	product, err := s.store.GetProduct(ctx, order.ProductID)
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("error").Inc()
		return nil, nil, fmt.Errorf("failed to load product %s: %w", order.ProductID, err)
	}
	if !product.IsDigital() {
		return nil, nil, fmt.Errorf("product %s is not digital", product.ID)
	}

	token, accessCode, err := s.IssueToken(ctx, order, product, false)
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	license, err := s.licenses.CreateLicense(ctx, order, product)
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("error").Inc()
		return nil, nil, fmt.Errorf("failed to create license: %w", err)
	}

	entry := &models.AuditLog{
		EventType:     models.AuditEventDelivery,
		OrderID:       order.ID,
		ProductID:     product.ID,
		CustomerEmail: order.CustomerEmail,
		DownloadToken: token.Token,
		FileName:      token.FileName,
		FileSize:      token.FileSize,
		Success:       true,
	}
	if license != nil {
		entry.LicenseKey = license.LicenseKey
	}
	s.audit.Record(ctx, entry)

	go func() {
		if err := s.notification.SendDeliveryEmail(order, token, accessCode, license); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to send delivery email")
		}
	}()

	metrics.DeliveriesTotal.WithLabelValues("success").Inc()
	return token, license, nil
}

// OrderStats reports per-order token usage for operator tooling.
func (s *DeliveryService) OrderStats(ctx context.Context, orderID uuid.UUID) (*store.DownloadStats, error) {
	return s.store.OrderDownloadStats(ctx, orderID)
}

func accessTypeFor(licenseType models.LicenseType) models.AccessType {
	switch licenseType {
	case models.LicenseTypeEnterprise:
		return models.AccessTypeEnterprise
	case models.LicenseTypeCommercial:
		return models.AccessTypePremium
	default:
		return models.AccessTypeStandard
	}
}
