// internal/models/download_token.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// WatermarkData is a traceability marker embedded in high-value deliveries.
// The hash is unpredictable but stable for the lifetime of the token, so a
// leaked file can be traced back to the order that produced it.
type WatermarkData struct {
	WatermarkID   string `json:"watermark_id" gorm:"size:36"`
	WatermarkHash string `json:"watermark_hash" gorm:"size:64"`
	WatermarkedAt string `json:"watermarked_at" gorm:"size:40"`
}

type ClientInfo struct {
	IP              string     `json:"ip" gorm:"size:45"`
	UserAgent       string     `json:"user_agent" gorm:"type:text"`
	Platform        string     `json:"platform" gorm:"size:20"`
	Browser         string     `json:"browser" gorm:"size:20"`
	FirstAccessedAt *time.Time `json:"first_accessed_at"`
	LastAccessedAt  *time.Time `json:"last_accessed_at"`
}

type SecurityFlags struct {
	SuspiciousActivity bool   `json:"suspicious_activity" gorm:"default:false;index"`
	RateLimitExceeded  bool   `json:"rate_limit_exceeded" gorm:"default:false"`
	UnauthorizedAccess bool   `json:"unauthorized_access" gorm:"default:false"`
	FlaggedReason      string `json:"flagged_reason,omitempty" gorm:"size:255"`
}

// DownloadToken represents one customer's right to download one product file.
// The token value is the capability; the access code is a second secret
// delivered out-of-band (email) and consumed on the first download.
type DownloadToken struct {
	BaseModel
	Token          string        `json:"token" gorm:"size:64;not null;uniqueIndex"`
	OrderID        uuid.UUID     `json:"order_id" gorm:"type:uuid;not null;index"`
	ProductID      uuid.UUID     `json:"product_id" gorm:"type:uuid;not null;index"`
	CustomerEmail  string        `json:"customer_email" gorm:"size:255;not null;index"`
	FileName       string        `json:"file_name" gorm:"size:255;not null"`
	FileURL        string        `json:"-" gorm:"size:1024;not null"`
	FileSize       int64         `json:"file_size" gorm:"default:0"`
	AccessCodeHash string        `json:"-" gorm:"size:60;not null"`
	AccessCodeUsed bool          `json:"access_code_used" gorm:"default:false"`
	DownloadCount  int           `json:"download_count" gorm:"default:0"`
	MaxDownloads   int           `json:"max_downloads" gorm:"default:5"`
	ExpiresAt      time.Time     `json:"expires_at" gorm:"not null;index"`
	AccessType     AccessType    `json:"access_type" gorm:"type:varchar(20);default:'standard'"`
	Watermark      WatermarkData `json:"watermark,omitempty" gorm:"embedded"`
	ClientInfo     ClientInfo    `json:"client_info" gorm:"embedded;embeddedPrefix:client_"`
	SecurityFlags  SecurityFlags `json:"security_flags" gorm:"embedded;embeddedPrefix:flag_"`
	IsActive       bool          `json:"is_active" gorm:"default:true;index"`
}

// IsValidForDownload reports whether a download may proceed right now.
func (t *DownloadToken) IsValidForDownload() bool {
	return t.IsActive &&
		!time.Now().After(t.ExpiresAt) &&
		t.DownloadCount < t.MaxDownloads &&
		!t.SecurityFlags.SuspiciousActivity
}

// InvalidReason returns the reported reason for an invalid token. Precedence:
// limit exceeded, then expired, then deactivated.
func (t *DownloadToken) InvalidReason() string {
	switch {
	case t.DownloadCount >= t.MaxDownloads:
		return "Download limit exceeded"
	case time.Now().After(t.ExpiresAt):
		return "Download link has expired"
	default:
		return "Download token deactivated"
	}
}

func (t *DownloadToken) HasWatermark() bool {
	return t.Watermark.WatermarkID != ""
}

// RecordAccess stamps the client details of a successful download. The first
// access time is written once; the last access time on every call.
func (t *DownloadToken) RecordAccess(info ClientInfo) {
	now := time.Now()
	first := t.ClientInfo.FirstAccessedAt
	t.ClientInfo = info
	if first == nil {
		t.ClientInfo.FirstAccessedAt = &now
	} else {
		t.ClientInfo.FirstAccessedAt = first
	}
	t.ClientInfo.LastAccessedAt = &now
}
