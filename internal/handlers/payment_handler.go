// internal/handlers/payment_handler.go
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/vendora/backend/internal/services"
	"github.com/vendora/backend/internal/utils"
)

// maxWebhookBody bounds the webhook payload read. Stripe events are small.
const maxWebhookBody = 1 << 16

type PaymentHandler struct {
	payments *services.PaymentService
	logger   *logrus.Entry
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logrus.WithField("component", "payment_handler"),
	}
}

type createIntentRequest struct {
	ProductID     string `json:"product_id" validate:"required,uuid4"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
}

// CreateIntent serves POST /payments/intent: opens a pending order and
// returns the Stripe client secret for the frontend to confirm.
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	order, clientSecret, err := h.payments.CreatePaymentIntent(c.Request.Context(), productID, req.CustomerEmail)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"order_id":      order.ID,
		"amount":        order.Amount,
		"client_secret": clientSecret,
	})
}

// Webhook serves POST /payments/webhook. The signature is verified against
// the endpoint secret before the event is trusted. Fulfillment errors return
// 500 so Stripe retries the event.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read request body", nil)
		return
	}

	event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.payments.WebhookSecret())
	if err != nil {
		h.logger.WithError(err).Warn("Webhook signature verification failed")
		utils.ErrorResponse(c, http.StatusBadRequest, "INVALID_SIGNATURE", "Webhook signature verification failed", nil)
		return
	}

	if err := h.payments.HandleWebhookEvent(c.Request.Context(), event); err != nil {
		h.logger.WithError(err).WithField("event_id", event.ID).Error("Webhook processing failed")
		utils.InternalErrorResponse(c, "Event processing failed")
		return
	}

	utils.SuccessResponse(c, gin.H{"received": true})
}
