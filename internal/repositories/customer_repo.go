package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"storefront/internal/models"
)

// CustomerRepository defines the interface for customer data access.
type CustomerRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Customer, error)
	GetByEmail(ctx context.Context, email string) (*models.Customer, error)
	GetByUserID(ctx context.Context, userID uint) (*models.Customer, error)
	Create(ctx context.Context, customer *models.Customer) error
	LinkUser(ctx context.Context, customerID, userID uint) error
}

// AddressRepository defines the interface for address data access.
type AddressRepository interface {
	GetForCustomer(ctx context.Context, id, customerID uint) (*models.Address, error)
	ListByCustomer(ctx context.Context, customerID uint) ([]models.Address, error)
	Create(ctx context.Context, address *models.Address) error
}

// GORMCustomerRepository is a GORM implementation of CustomerRepository.
type GORMCustomerRepository struct {
	db *gorm.DB
}

// NewGORMCustomerRepository creates a new instance of GORMCustomerRepository.
func NewGORMCustomerRepository(db *gorm.DB) *GORMCustomerRepository {
	return &GORMCustomerRepository{db: db}
}

func (r *GORMCustomerRepository) first(ctx context.Context, query string, arg interface{}) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).First(&customer, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &customer, nil
}

// GetByID retrieves a customer by ID.
func (r *GORMCustomerRepository) GetByID(ctx context.Context, id uint) (*models.Customer, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByEmail retrieves a customer by email, case-insensitively.
func (r *GORMCustomerRepository) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return r.first(ctx, "email = ?", NormalizeEmail(email))
}

// GetByUserID retrieves the customer linked to a user.
func (r *GORMCustomerRepository) GetByUserID(ctx context.Context, userID uint) (*models.Customer, error) {
	return r.first(ctx, "user_id = ?", userID)
}

// Create inserts a customer with a normalized email.
func (r *GORMCustomerRepository) Create(ctx context.Context, customer *models.Customer) error {
	customer.Email = NormalizeEmail(customer.Email)
	if err := r.db.WithContext(ctx).Create(customer).Error; err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// LinkUser attaches an existing customer to a user account.
func (r *GORMCustomerRepository) LinkUser(ctx context.Context, customerID, userID uint) error {
	res := r.db.WithContext(ctx).Model(&models.Customer{}).Where("id = ?", customerID).Update("user_id", userID)
	if res.Error != nil {
		return fmt.Errorf("failed to link customer %d to user %d: %w", customerID, userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrCustomerNotFound
	}
	return nil
}

// NormalizeEmail is the canonical stored form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GORMAddressRepository is a GORM implementation of AddressRepository.
type GORMAddressRepository struct {
	db *gorm.DB
}

// NewGORMAddressRepository creates a new instance of GORMAddressRepository.
func NewGORMAddressRepository(db *gorm.DB) *GORMAddressRepository {
	return &GORMAddressRepository{db: db}
}

// GetForCustomer retrieves an address only if it belongs to customerID.
func (r *GORMAddressRepository) GetForCustomer(ctx context.Context, id, customerID uint) (*models.Address, error) {
	var address models.Address
	err := r.db.WithContext(ctx).First(&address, "id = ? AND customer_id = ?", id, customerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to get address %d: %w", id, err)
	}
	return &address, nil
}

// ListByCustomer returns a customer's addresses.
func (r *GORMAddressRepository) ListByCustomer(ctx context.Context, customerID uint) ([]models.Address, error) {
	var addresses []models.Address
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("id").Find(&addresses).Error; err != nil {
		return nil, fmt.Errorf("failed to list addresses for customer %d: %w", customerID, err)
	}
	return addresses, nil
}

// Create inserts an address.
func (r *GORMAddressRepository) Create(ctx context.Context, address *models.Address) error {
	if err := r.db.WithContext(ctx).Create(address).Error; err != nil {
		return fmt.Errorf("failed to create address: %w", err)
	}
	return nil
}
