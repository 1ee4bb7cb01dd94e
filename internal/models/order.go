// internal/models/order.go
package models

import (
	"github.com/google/uuid"
)

type Order struct {
	BaseModel
	ProductID       uuid.UUID   `json:"product_id" gorm:"type:uuid;not null;index"`
	ProductName     string      `json:"product_name" gorm:"size:255;not null"`
	ProductType     ProductType `json:"product_type" gorm:"type:varchar(20);default:'physical'"`
	Amount          float64     `json:"amount" gorm:"type:decimal(10,2);not null"`
	CustomerEmail   string      `json:"customer_email" gorm:"size:255;index"`
	Status          OrderStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PaymentIntentID string      `json:"payment_intent_id" gorm:"size:255;index"`

	// Relationships
	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}
