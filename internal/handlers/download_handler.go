// internal/handlers/download_handler.go
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vendora/backend/internal/services"
	"github.com/vendora/backend/internal/utils"
)

type DownloadHandler struct {
	downloads *services.DownloadService
}

func NewDownloadHandler(downloads *services.DownloadService) *DownloadHandler {
	return &DownloadHandler{downloads: downloads}
}

// Download serves GET /download/:token. The access code arrives either as a
// query parameter or the X-Access-Code header; it is required on the first
// download only. A granted request redirects to the resolved file URL with
// the delivery headers set.
func (h *DownloadHandler) Download(c *gin.Context) {
	accessCode := c.Query("code")
	if accessCode == "" {
		accessCode = c.GetHeader("X-Access-Code")
	}

	handle, err := h.downloads.Authorize(c.Request.Context(), c.Param("token"), accessCode, services.RequestContext{
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	for name, value := range handle.Headers {
		c.Header(name, value)
	}
	c.Redirect(http.StatusFound, handle.URL)
}

// Info serves GET /download/:token/info: the customer-visible token state
// without consuming a download.
func (h *DownloadHandler) Info(c *gin.Context) {
	token, err := h.downloads.TokenInfo(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	remaining := token.MaxDownloads - token.DownloadCount
	if remaining < 0 {
		remaining = 0
	}

	utils.SuccessResponse(c, gin.H{
		"file_name":           token.FileName,
		"file_size":           token.FileSize,
		"download_count":      token.DownloadCount,
		"max_downloads":       token.MaxDownloads,
		"remaining":           remaining,
		"expires_at":          token.ExpiresAt,
		"expired":             time.Now().After(token.ExpiresAt),
		"is_active":           token.IsActive,
		"access_code_pending": !token.AccessCodeUsed,
		"watermarked":         token.HasWatermark(),
	})
}
