package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/database"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/repositories"
	"storefront/internal/services"
)

// MockPublisher is a mock implementation of services.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	args := m.Called(ctx, routingKey, payload)
	return args.Error(0)
}

type testEnv struct {
	db    *gorm.DB
	store *repositories.Store
	calc  *pricing.Calculator
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return &testEnv{
		db:    db,
		store: repositories.NewStore(db),
		calc:  pricing.NewCalculator(pricing.DefaultOptions()),
	}
}

func (e *testEnv) product(t *testing.T, name, price string, stock int, tracked bool) *models.Product {
	t.Helper()
	p := &models.Product{
		SKU:           uuid.NewString()[:8],
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		TrackStock:    tracked,
	}
	require.NoError(t, e.db.Create(p).Error)
	return p
}

func (e *testEnv) stock(t *testing.T, id uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, e.db.Unscoped().First(&p, id).Error)
	return p.StockQuantity
}

func (e *testEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func (e *testEnv) checkout(publisher services.EventPublisher) *services.CheckoutService {
	return services.NewCheckoutService(e.store, nil, e.calc, publisher, services.CheckoutConfig{Currency: "USD"}, nil)
}

func guestRequest(items ...services.CheckoutItem) services.CheckoutRequest {
	return services.CheckoutRequest{
		Items: items,
		Customer: &services.CustomerInput{
			FirstName: "Grace",
			LastName:  "Hopper",
			Email:     "grace@example.com",
		},
		ShippingAddress: &services.AddressInput{
			Line1:      "1 Navy Way",
			City:       "Arlington",
			PostalCode: "22202",
			Country:    "us",
		},
		PaymentMethod: models.PaymentMethodStub,
	}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireMoney(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, money(expected).Equal(actual), "expected %s, got %s", expected, actual.String())
}
