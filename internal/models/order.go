package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is a state of the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsValid reports whether s is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod is how the customer intends to pay.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodPayPal PaymentMethod = "paypal"
	PaymentMethodStub   PaymentMethod = "stub"
)

// Order is the record of a committed purchase. Totals and items are frozen at
// creation; only status, tracking and payment state change afterwards.
type Order struct {
	ID                uint            `json:"id" gorm:"primaryKey"`
	OrderNumber       string          `json:"order_number" gorm:"uniqueIndex;type:varchar(20);not null"`
	CustomerID        uint            `json:"customer_id" gorm:"index;not null"`
	Customer          *Customer       `json:"customer,omitempty"`
	Status            OrderStatus     `json:"status" gorm:"type:varchar(20);not null;index"`
	Currency          string          `json:"currency" gorm:"type:varchar(3);not null"`
	Subtotal          decimal.Decimal `json:"subtotal" gorm:"type:decimal(10,2);not null"`
	TaxAmount         decimal.Decimal `json:"tax_amount" gorm:"type:decimal(10,2);not null"`
	ShippingAmount    decimal.Decimal `json:"shipping_amount" gorm:"type:decimal(10,2);not null"`
	DiscountAmount    decimal.Decimal `json:"discount_amount" gorm:"type:decimal(10,2);not null"`
	Total             decimal.Decimal `json:"total" gorm:"type:decimal(10,2);not null"`
	Items             []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	PaymentMethod     PaymentMethod   `json:"payment_method" gorm:"type:varchar(20);not null"`
	ShippingAddressID uint            `json:"shipping_address_id" gorm:"not null"`
	ShippingAddress   *Address        `json:"shipping_address,omitempty"`
	BillingAddressID  uint            `json:"billing_address_id" gorm:"not null"`
	BillingAddress    *Address        `json:"billing_address,omitempty"`
	Payments          []Payment       `json:"payments,omitempty" gorm:"foreignKey:OrderID"`
	TrackingNumber    *string         `json:"tracking_number,omitempty" gorm:"type:varchar(64)"`
	ShippedAt         *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// OrderItem is a frozen copy of a purchased line.
type OrderItem struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	OrderID     uint            `json:"order_id" gorm:"index;not null"`
	ProductID   uint            `json:"product_id" gorm:"not null"`
	ProductName string          `json:"product_name" gorm:"not null"`
	SKU         string          `json:"sku"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(10,2);not null"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	LineTotal   decimal.Decimal `json:"line_total" gorm:"type:decimal(10,2);not null"`
}
