// internal/models/product.go
package models

import (
	"github.com/lib/pq"
)

// DigitalMeta carries the delivery parameters of a digital product: where the
// file lives (an opaque storage key, never a public path), how often it may be
// downloaded, and which license terms a purchase grants.
type DigitalMeta struct {
	FileURL         string         `json:"file_url" gorm:"size:1024"`
	FileName        string         `json:"file_name" gorm:"size:255"`
	FileSize        int64          `json:"file_size" gorm:"default:0"`
	DownloadLimit   int            `json:"download_limit" gorm:"default:5"`
	ExpirationHours int            `json:"expiration_hours" gorm:"default:24"`
	LicenseType     LicenseType    `json:"license_type" gorm:"type:varchar(20);default:'personal'"`
	MaxActivations  int            `json:"max_activations" gorm:"default:3"`
	Version         string         `json:"version" gorm:"size:20;default:'1.0.0'"`
	Features        pq.StringArray `json:"features" gorm:"type:text[]"`
}

type Product struct {
	BaseModel
	Name        string      `json:"name" gorm:"size:255;not null"`
	Description string      `json:"description" gorm:"type:text"`
	Category    string      `json:"category" gorm:"size:100;index"`
	Price       float64     `json:"price" gorm:"type:decimal(10,2);not null"`
	Type        ProductType `json:"type" gorm:"type:varchar(20);default:'physical';index"`
	DigitalMeta DigitalMeta `json:"digital_meta" gorm:"embedded;embeddedPrefix:digital_"`
	IsActive    bool        `json:"is_active" gorm:"default:true"`
}

func (p *Product) IsDigital() bool {
	return p.Type == ProductTypeDigital
}
