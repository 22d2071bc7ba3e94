package services

import (
	"context"

	"go.uber.org/zap"

	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// ProductService handles business logic related to products.
type ProductService struct {
	store repositories.Repositories
	log   *zap.Logger
}

// NewProductService creates a new ProductService.
func NewProductService(store repositories.Repositories, log *zap.Logger) *ProductService {
	return &ProductService{
		store: store,
		log:   logger.OrNop(log).Named("product"),
	}
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.Products().GetAll(ctx)
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(ctx context.Context, id uint) (*models.Product, error) {
	return s.store.Products().GetByID(ctx, id)
}

// CreateProduct creates a new product.
func (s *ProductService) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	return s.store.Products().Create(ctx, product)
}

// UpdateProduct updates an existing product.
func (s *ProductService) UpdateProduct(ctx context.Context, product *models.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	return s.store.Products().Update(ctx, product)
}

// DeleteProduct deletes a product by its ID.
func (s *ProductService) DeleteProduct(ctx context.Context, id uint) error {
	return s.store.Products().Delete(ctx, id)
}

// Restock adds qty units to a tracked product's stock.
func (s *ProductService) Restock(ctx context.Context, id uint, qty int) (*models.Product, error) {
	if qty < 1 {
		return nil, &models.InvalidQuantityError{Quantity: qty}
	}

	var product *models.Product
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		if _, err := tx.Products().GetByID(ctx, id); err != nil {
			return err
		}
		if err := tx.Inventory().Restore(ctx, id, qty); err != nil {
			return err
		}
		var err error
		product, err = tx.Products().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("product restocked", zap.Uint("product_id", id), zap.Int("quantity", qty), zap.Int("stock", product.StockQuantity))
	return product, nil
}

// LowStock lists tracked products at or below their minimum stock.
func (s *ProductService) LowStock(ctx context.Context) ([]models.Product, error) {
	return s.store.Products().ListLowStock(ctx)
}

func validateProduct(product *models.Product) error {
	if err := validateStruct(product); err != nil {
		return err
	}
	if product.Price.IsNegative() {
		return &models.ValidationError{Fields: map[string]string{"price": "must not be negative"}}
	}
	return nil
}
