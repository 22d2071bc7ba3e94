package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"storefront/internal/models"
)

// InventoryLedger is the authoritative stock count per product.
type InventoryLedger interface {
	// CheckAvailable reports whether qty can be taken. It is advisory only;
	// ReserveAndDecrement performs the authoritative check.
	CheckAvailable(ctx context.Context, productID uint, qty int) (bool, error)
	// ReserveAndDecrement takes qty from tracked stock or fails with
	// *models.InsufficientStockError without changing anything.
	ReserveAndDecrement(ctx context.Context, productID uint, qty int) error
	// Restore gives qty back to tracked stock. Untracked products are ignored.
	Restore(ctx context.Context, productID uint, qty int) error
}

// GORMInventoryLedger keeps stock in the products table. Built from a
// transaction handle, its writes commit or roll back with that transaction.
type GORMInventoryLedger struct {
	db *gorm.DB
}

// NewGORMInventoryLedger creates a ledger over db.
func NewGORMInventoryLedger(db *gorm.DB) *GORMInventoryLedger {
	return &GORMInventoryLedger{db: db}
}

// CheckAvailable is true when the product is untracked or has at least qty.
func (l *GORMInventoryLedger) CheckAvailable(ctx context.Context, productID uint, qty int) (bool, error) {
	product, err := l.load(ctx, productID)
	if err != nil {
		return false, err
	}
	return !product.TrackStock || product.StockQuantity >= qty, nil
}

// ReserveAndDecrement is a single conditional UPDATE: the row only matches
// when it is untracked or holds enough stock, so two concurrent callers can
// never both take the last units. Untracked rows match but keep their count.
func (l *GORMInventoryLedger) ReserveAndDecrement(ctx context.Context, productID uint, qty int) error {
	if qty < 1 {
		return &models.InvalidQuantityError{Quantity: qty}
	}

	res := l.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND (track_stock = ? OR stock_quantity >= ?)", productID, false, qty).
		UpdateColumn("stock_quantity",
			gorm.Expr("CASE WHEN track_stock THEN stock_quantity - ? ELSE stock_quantity END", qty))
	if res.Error != nil {
		return fmt.Errorf("failed to decrement stock for product %d: %w", productID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	product, err := l.load(ctx, productID)
	if err != nil {
		return err
	}
	return &models.InsufficientStockError{
		ProductID:   product.ID,
		ProductName: product.Name,
		Requested:   qty,
		Available:   product.StockQuantity,
	}
}

// Restore increments tracked stock, including for soft-deleted products.
func (l *GORMInventoryLedger) Restore(ctx context.Context, productID uint, qty int) error {
	if qty < 1 {
		return nil
	}
	err := l.db.WithContext(ctx).Unscoped().Model(&models.Product{}).
		Where("id = ? AND track_stock = ?", productID, true).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", qty)).Error
	if err != nil {
		return fmt.Errorf("failed to restore stock for product %d: %w", productID, err)
	}
	return nil
}

func (l *GORMInventoryLedger) load(ctx context.Context, productID uint) (*models.Product, error) {
	var product models.Product
	if err := l.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.ProductNotFoundError{ProductID: productID}
		}
		return nil, fmt.Errorf("failed to load stock for product %d: %w", productID, err)
	}
	return &product, nil
}
