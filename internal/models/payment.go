package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the state of one payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Payment is one recorded attempt to charge for an order. Rows change status
// in place; retries append new rows.
type Payment struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	OrderID       uint            `json:"order_id" gorm:"index;not null"`
	Method        PaymentMethod   `json:"method" gorm:"type:varchar(20);not null"`
	TransactionID string          `json:"transaction_id" gorm:"index;type:varchar(128)"`
	Status        PaymentStatus   `json:"status" gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	Currency      string          `json:"currency" gorm:"type:varchar(3);not null"`
	FailureReason string          `json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
