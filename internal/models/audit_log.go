// internal/models/audit_log.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is an append-only record of every delivery, download and activation
// attempt. Entries are never mutated or deleted by the application.
type AuditLog struct {
	BaseModel
	EventType     AuditEventType `json:"event_type" gorm:"type:varchar(20);not null;index"`
	OrderID       uuid.UUID      `json:"order_id" gorm:"type:uuid;index"`
	ProductID     uuid.UUID      `json:"product_id" gorm:"type:uuid;index"`
	CustomerEmail string         `json:"customer_email" gorm:"size:255;index"`
	DownloadToken string         `json:"download_token,omitempty" gorm:"size:64;index"`
	LicenseKey    string         `json:"license_key,omitempty" gorm:"size:19;index"`
	FileName      string         `json:"file_name,omitempty" gorm:"size:255"`
	FileSize      int64          `json:"file_size,omitempty" gorm:"default:0"`
	Success       bool           `json:"success" gorm:"default:true"`
	ErrorMessage  string         `json:"error_message,omitempty" gorm:"type:text"`
	ClientInfo    ClientInfo     `json:"client_info" gorm:"embedded;embeddedPrefix:client_"`
	OccurredAt    time.Time      `json:"occurred_at" gorm:"not null;index"`
}
