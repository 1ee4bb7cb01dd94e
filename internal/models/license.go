// internal/models/license.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type DeviceInfo struct {
	Platform string `json:"platform" gorm:"size:50"`
	Browser  string `json:"browser" gorm:"size:50"`
	IP       string `json:"ip" gorm:"size:45"`
}

type Activation struct {
	BaseModel
	LicenseID   uuid.UUID  `json:"license_id" gorm:"type:uuid;not null;index"`
	DeviceID    string     `json:"device_id" gorm:"size:128;not null;index"`
	DeviceInfo  DeviceInfo `json:"device_info" gorm:"embedded;embeddedPrefix:device_"`
	ActivatedAt time.Time  `json:"activated_at"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`
}

// License is a grant to run software on a bounded number of devices.
// ActivationCount is derived state: it is always recomputed from the
// activation list, never incremented on its own.
type License struct {
	BaseModel
	OrderID         uuid.UUID      `json:"order_id" gorm:"type:uuid;not null;index"`
	ProductID       uuid.UUID      `json:"product_id" gorm:"type:uuid;not null;index"`
	LicenseKey      string         `json:"license_key" gorm:"size:19;not null;uniqueIndex"`
	CustomerEmail   string         `json:"customer_email" gorm:"size:255;not null;index"`
	LicenseType     LicenseType    `json:"license_type" gorm:"type:varchar(20);default:'personal'"`
	Status          LicenseStatus  `json:"status" gorm:"type:varchar(20);default:'active';index"`
	Activations     []Activation   `json:"activations" gorm:"foreignKey:LicenseID"`
	ActivationCount int            `json:"activation_count" gorm:"default:0"`
	MaxActivations  int            `json:"max_activations" gorm:"default:3"`
	ExpiresAt       time.Time      `json:"expires_at"`
	Features        pq.StringArray `json:"features" gorm:"type:text[]"`
	Version         string         `json:"version" gorm:"size:20"`
	Lock            int            `json:"-" gorm:"column:lock_version;default:0"`
}

// IsValid reports whether the license may be used for validation/activation.
func (l *License) IsValid() bool {
	return l.Status == LicenseStatusActive &&
		l.ExpiresAt.After(time.Now()) &&
		l.ActivationCount <= l.MaxActivations
}

// ActiveActivation returns the active activation entry for deviceID, if any.
func (l *License) ActiveActivation(deviceID string) *Activation {
	for i := range l.Activations {
		if l.Activations[i].DeviceID == deviceID && l.Activations[i].IsActive {
			return &l.Activations[i]
		}
	}
	return nil
}

// RecomputeActivationCount derives the counter from the activation entries.
func (l *License) RecomputeActivationCount() {
	count := 0
	for i := range l.Activations {
		if l.Activations[i].IsActive {
			count++
		}
	}
	l.ActivationCount = count
}
