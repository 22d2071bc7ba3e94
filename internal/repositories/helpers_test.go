package repositories_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/database"
	"storefront/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, price string, stock int, tracked bool) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:           sku,
		Name:          "Product " + sku,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		TrackStock:    tracked,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func stockOf(t *testing.T, db *gorm.DB, id uint) int {
	t.Helper()
	var product models.Product
	require.NoError(t, db.Unscoped().First(&product, id).Error)
	return product.StockQuantity
}
