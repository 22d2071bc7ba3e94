package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"storefront/internal/models"
)

// PaymentRepository defines the interface for payment data access.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id uint) (*models.Payment, error)
	FindByTransaction(ctx context.Context, orderID uint, transactionID string) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID uint) ([]models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
}

// GORMPaymentRepository is a GORM implementation of PaymentRepository.
type GORMPaymentRepository struct {
	db *gorm.DB
}

// NewGORMPaymentRepository creates a new instance of GORMPaymentRepository.
func NewGORMPaymentRepository(db *gorm.DB) *GORMPaymentRepository {
	return &GORMPaymentRepository{db: db}
}

// Create appends a payment row.
func (r *GORMPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment for order %d: %w", payment.OrderID, err)
	}
	return nil
}

// GetByID retrieves a payment by ID.
func (r *GORMPaymentRepository) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment %d: %w", id, err)
	}
	return &payment, nil
}

// FindByTransaction retrieves the payment an order already has for a gateway
// transaction reference.
func (r *GORMPaymentRepository) FindByTransaction(ctx context.Context, orderID uint, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND transaction_id = ?", orderID, transactionID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to find payment %s: %w", transactionID, err)
	}
	return &payment, nil
}

// ListByOrder returns an order's payments in the order they were recorded.
func (r *GORMPaymentRepository) ListByOrder(ctx context.Context, orderID uint) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments for order %d: %w", orderID, err)
	}
	return payments, nil
}

// Update saves a payment's status fields.
func (r *GORMPaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	err := r.db.WithContext(ctx).Model(payment).
		Select("Status", "TransactionID", "FailureReason", "ProcessedAt").
		Updates(payment).Error
	if err != nil {
		return fmt.Errorf("failed to update payment %d: %w", payment.ID, err)
	}
	return nil
}
