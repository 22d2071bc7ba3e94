package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalog entry. Its stock columns form the product's inventory
// record: when TrackStock is set, StockQuantity never goes below zero.
type Product struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	SKU              string          `json:"sku" gorm:"uniqueIndex;type:varchar(64);not null" validate:"required,max=64"`
	Name             string          `json:"name" gorm:"type:varchar(100);not null" validate:"required,min=3,max=100"`
	Description      string          `json:"description" validate:"omitempty,max=500"`
	Price            decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	StockQuantity    int             `json:"stock_quantity" gorm:"not null" validate:"gte=0"`
	MinStockQuantity int             `json:"min_stock_quantity" gorm:"not null" validate:"gte=0"`
	TrackStock       bool            `json:"track_stock" gorm:"not null"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `json:"-" gorm:"index"`
}

// IsLowStock reports whether a tracked product is at or below its minimum.
func (p *Product) IsLowStock() bool {
	return p.TrackStock && p.StockQuantity <= p.MinStockQuantity
}
