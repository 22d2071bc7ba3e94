package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CartStatus is the lifecycle state of a cart.
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusConverted CartStatus = "converted"
	CartStatusExpired   CartStatus = "expired"
)

// OwnerRef identifies who a cart belongs to: a signed-in user or a guest
// session, never both.
type OwnerRef struct {
	UserID    uint   `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Validate checks that exactly one owner identity is set.
func (o OwnerRef) Validate() error {
	if (o.UserID == 0) == (o.SessionID == "") {
		return ErrInvalidOwner
	}
	return nil
}

// IsGuest reports whether the owner is a guest session.
func (o OwnerRef) IsGuest() bool {
	return o.UserID == 0 && o.SessionID != ""
}

// Key is a stable string form of the owner, used for cache keys and logs.
func (o OwnerRef) Key() string {
	if o.UserID != 0 {
		return fmt.Sprintf("user:%d", o.UserID)
	}
	return "session:" + o.SessionID
}

// Cart is a mutable pre-purchase collection of line items.
type Cart struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	UserID         *uint           `json:"user_id,omitempty" gorm:"index"`
	SessionID      *string         `json:"session_id,omitempty" gorm:"index;type:varchar(64)"`
	Status         CartStatus      `json:"status" gorm:"type:varchar(20);not null;index"`
	Currency       string          `json:"currency" gorm:"type:varchar(3);not null"`
	Items          []CartItem      `json:"items" gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	Subtotal       decimal.Decimal `json:"subtotal" gorm:"type:decimal(10,2);not null"`
	TaxAmount      decimal.Decimal `json:"tax_amount" gorm:"type:decimal(10,2);not null"`
	ShippingAmount decimal.Decimal `json:"shipping_amount" gorm:"type:decimal(10,2);not null"`
	DiscountAmount decimal.Decimal `json:"discount_amount" gorm:"type:decimal(10,2);not null"`
	Total          decimal.Decimal `json:"total" gorm:"type:decimal(10,2);not null"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty" gorm:"index"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Owner returns the cart's owner reference.
func (c *Cart) Owner() OwnerRef {
	var o OwnerRef
	if c.UserID != nil {
		o.UserID = *c.UserID
	}
	if c.SessionID != nil {
		o.SessionID = *c.SessionID
	}
	return o
}

// IsExpired reports whether a guest cart has outlived its TTL at now.
func (c *Cart) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// ItemForProduct returns the line for productID, or nil.
func (c *Cart) ItemForProduct(productID uint) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// CartItem is one product line in a cart with its price snapshot.
type CartItem struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	CartID      uint            `json:"cart_id" gorm:"index;not null"`
	ProductID   uint            `json:"product_id" gorm:"not null"`
	ProductName string          `json:"product_name" gorm:"not null"`
	SKU         string          `json:"sku"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(10,2);not null"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	LineTotal   decimal.Decimal `json:"line_total" gorm:"type:decimal(10,2);not null"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
