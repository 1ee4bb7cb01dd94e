// internal/handlers/common.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/vendora/backend/internal/services"
	"github.com/vendora/backend/internal/utils"
)

// respondServiceError translates a service-layer outcome into the API error
// envelope. Unknown errors never leak details to the client.
func respondServiceError(c *gin.Context, err error) {
	if svcErr, ok := services.AsServiceError(err); ok {
		var details interface{}
		if svcErr.Hint != "" {
			details = gin.H{"hint": svcErr.Hint}
		}
		utils.ErrorResponse(c, svcErr.HTTPStatus, svcErr.Code, svcErr.Message, details)
		return
	}
	utils.InternalErrorResponse(c, "")
}
