package models

import "time"

// Customer is the purchasing party of an order. Guests are customers without
// a linked user; a user has at most one customer.
type Customer struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    *uint     `json:"user_id,omitempty" gorm:"uniqueIndex"`
	FirstName string    `json:"first_name" gorm:"type:varchar(100);not null"`
	LastName  string    `json:"last_name" gorm:"type:varchar(100);not null"`
	Email     string    `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	Phone     string    `json:"phone,omitempty" gorm:"type:varchar(32)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Address is a postal address scoped to one customer.
type Address struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CustomerID uint      `json:"customer_id" gorm:"index;not null"`
	Line1      string    `json:"line1" gorm:"not null"`
	Line2      string    `json:"line2,omitempty"`
	City       string    `json:"city" gorm:"not null"`
	State      string    `json:"state,omitempty"`
	PostalCode string    `json:"postal_code" gorm:"not null"`
	Country    string    `json:"country" gorm:"type:varchar(2);not null"`
	CreatedAt  time.Time `json:"created_at"`
}
