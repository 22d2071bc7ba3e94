package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"storefront/internal/models"
)

// OrderRepository defines the interface for order data access. Orders are
// never deleted.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uint) (*models.Order, error)
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	NumberExists(ctx context.Context, number string) (bool, error)
	List(ctx context.Context, page, limit int) ([]models.Order, int64, error)
	ListByCustomer(ctx context.Context, customerID uint, page, limit int) ([]models.Order, int64, error)
	// TransitionStatus writes to and fields only if the order is still in
	// from. It reports whether the row was updated.
	TransitionStatus(ctx context.Context, id uint, from, to models.OrderStatus, fields map[string]interface{}) (bool, error)
}

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{db: db}
}

// Create inserts the order together with its items.
func (r *GORMOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Omit("Customer", "ShippingAddress", "BillingAddress", "Payments").Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order %s: %w", order.OrderNumber, err)
	}
	return nil
}

func (r *GORMOrderRepository) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Customer").
		Preload("ShippingAddress").
		Preload("BillingAddress").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

// GetByID loads an order with items, customer, addresses and payments.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := r.withRelations(ctx).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return &order, nil
}

// GetByNumber loads an order by its external number.
func (r *GORMOrderRepository) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	if err := r.withRelations(ctx).First(&order, "order_number = ?", number).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", number, err)
	}
	return &order, nil
}

// NumberExists reports whether an order number is already taken.
func (r *GORMOrderRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Where("order_number = ?", number).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check order number %s: %w", number, err)
	}
	return count > 0, nil
}

// List returns one page of orders, newest first, and the total count.
func (r *GORMOrderRepository) List(ctx context.Context, page, limit int) ([]models.Order, int64, error) {
	return r.page(ctx, func(db *gorm.DB) *gorm.DB { return db }, page, limit)
}

// ListByCustomer returns one page of a customer's orders, newest first.
func (r *GORMOrderRepository) ListByCustomer(ctx context.Context, customerID uint, page, limit int) ([]models.Order, int64, error) {
	byCustomer := func(db *gorm.DB) *gorm.DB { return db.Where("customer_id = ?", customerID) }
	return r.page(ctx, byCustomer, page, limit)
}

func (r *GORMOrderRepository) page(ctx context.Context, scope func(*gorm.DB) *gorm.DB, page, limit int) ([]models.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []models.Order
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).Scopes(scope).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Offset(offset).
		Limit(limit).
		Order("created_at DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// TransitionStatus is a compare-and-set on the status column.
func (r *GORMOrderRepository) TransitionStatus(ctx context.Context, id uint, from, to models.OrderStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to move order %d from %s to %s: %w", id, from, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}
