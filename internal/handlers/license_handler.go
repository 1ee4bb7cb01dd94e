// internal/handlers/license_handler.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/vendora/backend/internal/services"
	"github.com/vendora/backend/internal/utils"
)

type LicenseHandler struct {
	licenses *services.LicenseService
}

func NewLicenseHandler(licenses *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{licenses: licenses}
}

type validateLicenseRequest struct {
	LicenseKey string `json:"license_key" validate:"required,license_key"`
	DeviceID   string `json:"device_id"`
}

type activateLicenseRequest struct {
	LicenseKey string `json:"license_key" validate:"required,license_key"`
	DeviceID   string `json:"device_id" validate:"required,device_id"`
}

// Validate serves POST /license/validate: may this installation run.
func (h *LicenseHandler) Validate(c *gin.Context) {
	var req validateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	result, err := h.licenses.Validate(c.Request.Context(), req.LicenseKey, req.DeviceID, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

// Activate serves POST /license/activate: bind the license to a device.
func (h *LicenseHandler) Activate(c *gin.Context) {
	var req activateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	license, activation, err := h.licenses.Activate(c.Request.Context(), req.LicenseKey, req.DeviceID, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license_key":      license.LicenseKey,
		"status":           license.Status,
		"activation_count": license.ActivationCount,
		"max_activations":  license.MaxActivations,
		"expires_at":       license.ExpiresAt,
		"activated_at":     activation.ActivatedAt,
		"device_id":        activation.DeviceID,
	})
}

// Deactivate serves POST /license/deactivate: free the device's slot.
func (h *LicenseHandler) Deactivate(c *gin.Context) {
	var req activateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	license, err := h.licenses.Deactivate(c.Request.Context(), req.LicenseKey, req.DeviceID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license_key":      license.LicenseKey,
		"activation_count": license.ActivationCount,
		"max_activations":  license.MaxActivations,
	})
}
