package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"storefront/internal/models"
)

// CartRepository defines the interface for cart data access.
type CartRepository interface {
	FindActiveByOwner(ctx context.Context, owner models.OwnerRef) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	SaveTotals(ctx context.Context, cart *models.Cart) error
	SaveItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID uint) error
	ClearItems(ctx context.Context, cartID uint) error
	SetStatus(ctx context.Context, cartID uint, status models.CartStatus) error
	ExpireSessionCarts(ctx context.Context, now time.Time) (int64, error)
}

// GORMCartRepository is a GORM implementation of CartRepository.
type GORMCartRepository struct {
	db *gorm.DB
}

// NewGORMCartRepository creates a new instance of GORMCartRepository.
func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{db: db}
}

// FindActiveByOwner loads the owner's active cart with its items in insertion
// order, or models.ErrCartNotFound.
func (r *GORMCartRepository) FindActiveByOwner(ctx context.Context, owner models.OwnerRef) (*models.Cart, error) {
	q := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("status = ?", models.CartStatusActive)
	if owner.UserID != 0 {
		q = q.Where("user_id = ?", owner.UserID)
	} else {
		q = q.Where("session_id = ?", owner.SessionID)
	}

	var cart models.Cart
	if err := q.Order("id DESC").First(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart for %s: %w", owner.Key(), err)
	}
	return &cart, nil
}

// Create inserts an empty cart.
func (r *GORMCartRepository) Create(ctx context.Context, cart *models.Cart) error {
	if err := r.db.WithContext(ctx).Omit("Items").Create(cart).Error; err != nil {
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

// SaveTotals persists the cart's five monetary columns.
func (r *GORMCartRepository) SaveTotals(ctx context.Context, cart *models.Cart) error {
	err := r.db.WithContext(ctx).Model(cart).
		Select("Subtotal", "TaxAmount", "ShippingAmount", "DiscountAmount", "Total").
		Updates(cart).Error
	if err != nil {
		return fmt.Errorf("failed to save totals for cart %d: %w", cart.ID, err)
	}
	return nil
}

// SaveItem inserts a new line or updates an existing one.
func (r *GORMCartRepository) SaveItem(ctx context.Context, item *models.CartItem) error {
	var err error
	if item.ID == 0 {
		err = r.db.WithContext(ctx).Create(item).Error
	} else {
		err = r.db.WithContext(ctx).Save(item).Error
	}
	if err != nil {
		return fmt.Errorf("failed to save item for cart %d: %w", item.CartID, err)
	}
	return nil
}

// DeleteItem removes one line from a cart.
func (r *GORMCartRepository) DeleteItem(ctx context.Context, cartID, itemID uint) error {
	res := r.db.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&models.CartItem{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete cart item %d: %w", itemID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrCartItemNotFound
	}
	return nil
}

// ClearItems removes every line from a cart.
func (r *GORMCartRepository) ClearItems(ctx context.Context, cartID uint) error {
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart %d: %w", cartID, err)
	}
	return nil
}

// SetStatus moves a cart to status.
func (r *GORMCartRepository) SetStatus(ctx context.Context, cartID uint, status models.CartStatus) error {
	err := r.db.WithContext(ctx).Model(&models.Cart{}).Where("id = ?", cartID).Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to set status of cart %d: %w", cartID, err)
	}
	return nil
}

// ExpireSessionCarts marks active guest carts past their expiry as expired
// and returns how many were affected.
func (r *GORMCartRepository) ExpireSessionCarts(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("status = ? AND session_id IS NOT NULL AND expires_at < ?", models.CartStatusActive, now).
		Update("status", models.CartStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire session carts: %w", res.Error)
	}
	return res.RowsAffected, nil
}
