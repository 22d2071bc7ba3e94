package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrCartNotFound       = errors.New("cart not found")
	ErrCartItemNotFound   = errors.New("cart item not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrAddressNotFound    = errors.New("address not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidOwner       = errors.New("cart owner must be exactly one of user or session")
	ErrCurrencyMismatch   = errors.New("payment currency does not match order currency")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("username or email already registered")
	ErrOrderAlreadyPaid   = errors.New("order is already fully paid")
	ErrGatewayUnavailable = errors.New("no payment gateway for method")
	ErrAccountRequired    = errors.New("email belongs to a registered account, sign in to check out")
)

// InsufficientStockError reports a requested quantity above tracked stock.
type InsufficientStockError struct {
	ProductID   uint
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (requested: %d, available: %d)", e.ProductName, e.Requested, e.Available)
}

// InvalidQuantityError reports a line quantity below one.
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1, got %d", e.Quantity)
}

// ProductNotFoundError reports a reference to a product that does not exist.
type ProductNotFoundError struct {
	ProductID uint
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product with ID %d not found", e.ProductID)
}

// AddressRequiredError reports a missing address. Kind is "shipping" or "billing".
type AddressRequiredError struct {
	Kind string
}

func (e *AddressRequiredError) Error() string {
	return fmt.Sprintf("%s address is required", e.Kind)
}

// OrderNumberCollisionError is returned only when every generated order
// number was already taken.
type OrderNumberCollisionError struct {
	Attempts int
}

func (e *OrderNumberCollisionError) Error() string {
	return fmt.Sprintf("could not allocate a unique order number after %d attempts", e.Attempts)
}

// PaymentRecordingError reports a payment step that failed after the order
// was committed. The order stays in place.
type PaymentRecordingError struct {
	OrderNumber string
	PaymentID   uint
	Err         error
}

func (e *PaymentRecordingError) Error() string {
	return fmt.Sprintf("payment for order %s failed: %v", e.OrderNumber, e.Err)
}

func (e *PaymentRecordingError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError reports a status change the order lifecycle forbids.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// ValidationError carries per-field validation failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
