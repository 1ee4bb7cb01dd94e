// internal/services/payment_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/vendora/backend/internal/config"
	"github.com/vendora/backend/internal/models"
	"github.com/vendora/backend/internal/store"
)

// PaymentService creates Stripe payment intents for orders and turns the
// payment_intent.succeeded webhook into a fulfilled digital delivery.
type PaymentService struct {
	store    store.Store
	delivery *DeliveryService
	cfg      config.PaymentConfig
	logger   *logrus.Entry
}

func NewPaymentService(st store.Store, delivery *DeliveryService, cfg config.PaymentConfig) *PaymentService {
	stripe.Key = cfg.StripeSecretKey
	return &PaymentService{
		store:    st,
		delivery: delivery,
		cfg:      cfg,
		logger:   logrus.WithField("component", "payment"),
	}
}

// CreatePaymentIntent opens a pending order for the product and a matching
// Stripe payment intent. The order ID rides in the intent metadata so the
// webhook can find its way back.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, productID uuid.UUID, customerEmail string) (*models.Order, string, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", &ServiceError{Code: "PRODUCT_NOT_FOUND", Message: "Product not found", HTTPStatus: 404}
		}
		return nil, "", ErrStorageFailure
	}
	if !product.IsActive {
		return nil, "", &ServiceError{Code: "PRODUCT_UNAVAILABLE", Message: "Product is not available", HTTPStatus: 409}
	}

	order := &models.Order{
		ProductID:     product.ID,
		ProductName:   product.Name,
		ProductType:   product.Type,
		Amount:        product.Price,
		CustomerEmail: customerEmail,
		Status:        models.OrderStatusPending,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, "", fmt.Errorf("failed to create order: %w", err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(int64(math.Round(product.Price * 100))),
		Currency:     stripe.String(s.cfg.Currency),
		ReceiptEmail: stripe.String(customerEmail),
	}
	params.AddMetadata("order_id", order.ID.String())
	params.AddMetadata("product_id", product.ID.String())

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create payment intent: %w", err)
	}

	order.PaymentIntentID = intent.ID
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return nil, "", fmt.Errorf("failed to attach payment intent to order: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"payment_intent": intent.ID,
		"amount":         product.Price,
	}).Info("Payment intent created")

	return order, intent.ClientSecret, nil
}

// HandleWebhookEvent processes a verified Stripe event. Only
// payment_intent.succeeded triggers fulfillment; everything else is
// acknowledged and ignored.
func (s *PaymentService) HandleWebhookEvent(ctx context.Context, event stripe.Event) error {
	if event.Type != "payment_intent.succeeded" {
		s.logger.WithField("type", event.Type).Debug("Ignoring webhook event")
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return fmt.Errorf("failed to parse payment intent: %w", err)
	}

	orderIDRaw, ok := intent.Metadata["order_id"]
	if !ok {
		return fmt.Errorf("payment intent %s has no order_id metadata", intent.ID)
	}
	orderID, err := uuid.Parse(orderIDRaw)
	if err != nil {
		return fmt.Errorf("payment intent %s has malformed order_id %q", intent.ID, orderIDRaw)
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	// Stripe retries webhooks; a delivered order means this event was
	// already processed.
	if order.Status == models.OrderStatusDelivered {
		s.logger.WithField("order_id", orderID).Info("Order already delivered, skipping")
		return nil
	}

	order.Status = models.OrderStatusCompleted
	order.PaymentIntentID = intent.ID
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to mark order completed: %w", err)
	}

	if order.ProductType != models.ProductTypeDigital {
		s.logger.WithField("order_id", orderID).Info("Non-digital order paid, no delivery pipeline")
		return nil
	}

	if _, _, err := s.delivery.ProcessDigitalDelivery(ctx, order); err != nil {
		return fmt.Errorf("fulfillment failed for order %s: %w", orderID, err)
	}

	order.Status = models.OrderStatusDelivered
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to mark order delivered: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":       orderID,
		"payment_intent": intent.ID,
	}).Info("Order fulfilled")

	return nil
}

// WebhookSecret exposes the endpoint secret for signature verification at
// the HTTP layer.
func (s *PaymentService) WebhookSecret() string {
	return s.cfg.StripeWebhookSecret
}
