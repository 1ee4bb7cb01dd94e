// internal/handlers/admin_handler.go
package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vendora/backend/internal/config"
	"github.com/vendora/backend/internal/models"
	"github.com/vendora/backend/internal/services"
	"github.com/vendora/backend/internal/store"
	"github.com/vendora/backend/internal/utils"
)

// AdminHandler is the operator surface: audit queries, platform stats, token
// revocation and license status changes. Everything except Login sits behind
// the JWT middleware.
type AdminHandler struct {
	store     store.Store
	downloads *services.DownloadService
	licenses  *services.LicenseService
	delivery  *services.DeliveryService
	audit     *services.AuditService
	cfg       config.AdminConfig
}

func NewAdminHandler(
	st store.Store,
	downloads *services.DownloadService,
	licenses *services.LicenseService,
	delivery *services.DeliveryService,
	audit *services.AuditService,
	cfg config.AdminConfig,
) *AdminHandler {
	return &AdminHandler{
		store:     st,
		downloads: downloads,
		licenses:  licenses,
		delivery:  delivery,
		audit:     audit,
		cfg:       cfg,
	}
}

type adminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login serves POST /admin/login and issues the operator JWT.
func (h *AdminHandler) Login(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.APIUsername)) == 1
	passOK := h.cfg.APIPassword != "" &&
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.APIPassword)) == 1
	if !userOK || !passOK {
		utils.UnauthorizedResponse(c, "Invalid credentials")
		return
	}

	token, err := utils.GenerateAdminJWT(req.Username, h.cfg.TokenTTL)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"token":      token,
		"expires_in": h.cfg.TokenTTL * 3600,
	})
}

// ListAudits serves GET /admin/audits with optional filters.
func (h *AdminHandler) ListAudits(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := store.AuditFilter{
		CustomerEmail: c.Query("customer_email"),
		EventType:     models.AuditEventType(c.Query("event_type")),
		Limit:         params.Limit,
		Offset:        params.Offset(),
	}
	if raw := c.Query("order_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid order ID", nil)
			return
		}
		filter.OrderID = &id
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid from timestamp, use RFC3339", nil)
			return
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid to timestamp, use RFC3339", nil)
			return
		}
		filter.To = &to
	}

	entries, total, err := h.audit.Query(c.Request.Context(), filter)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(entries, total, params))
}

// Stats serves GET /admin/stats: platform-wide counters.
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	totalTokens, err := h.store.CountTokens(ctx, false)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}
	activeTokens, err := h.store.CountTokens(ctx, true)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}
	totalLicenses, err := h.store.CountLicenses(ctx, "")
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}
	activeLicenses, err := h.store.CountLicenses(ctx, models.LicenseStatusActive)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}
	totalOrders, err := h.store.CountOrders(ctx)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"tokens": gin.H{
			"total":  totalTokens,
			"active": activeTokens,
		},
		"licenses": gin.H{
			"total":  totalLicenses,
			"active": activeLicenses,
		},
		"orders": gin.H{
			"total": totalOrders,
		},
	})
}

// OrderStats serves GET /admin/orders/:id/stats.
func (h *AdminHandler) OrderStats(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	stats, err := h.delivery.OrderStats(c.Request.Context(), orderID)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}
	utils.SuccessResponse(c, stats)
}

// Redeliver serves POST /admin/orders/:id/redeliver: runs the fulfillment
// pipeline again for a paid order, issuing a fresh token and license. Used
// when a customer lost the original email or exhausted an expired token.
func (h *AdminHandler) Redeliver(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	order, err := h.store.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.NotFoundResponse(c, "Order")
			return
		}
		utils.InternalErrorResponse(c, "")
		return
	}
	if order.Status == models.OrderStatusPending || order.Status == models.OrderStatusCancelled {
		utils.ErrorResponse(c, http.StatusConflict, "ORDER_NOT_PAID", "Order has not been paid", nil)
		return
	}

	token, license, err := h.delivery.ProcessDigitalDelivery(c.Request.Context(), order)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	resp := gin.H{
		"order_id":   order.ID,
		"token":      token.Token,
		"expires_at": token.ExpiresAt,
	}
	if license != nil {
		resp["license_key"] = license.LicenseKey
	}
	utils.SuccessResponse(c, resp)
}

// RevokeToken serves DELETE /admin/tokens/:token: deactivates a download
// token ahead of its natural expiry.
func (h *AdminHandler) RevokeToken(c *gin.Context) {
	if err := h.downloads.Deactivate(c.Request.Context(), c.Param("token")); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"revoked": true})
}

type licenseStatusRequest struct {
	Status models.LicenseStatus `json:"status" validate:"required,oneof=active suspended revoked"`
}

// SetLicenseStatus serves PUT /admin/licenses/:key/status.
func (h *AdminHandler) SetLicenseStatus(c *gin.Context) {
	var req licenseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	license, err := h.licenses.SetStatus(c.Request.Context(), c.Param("key"), req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license_key": license.LicenseKey,
		"status":      license.Status,
	})
}

// GetLicense serves GET /admin/licenses/:key with the full activation list.
func (h *AdminHandler) GetLicense(c *gin.Context) {
	license, err := h.licenses.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, license)
}
