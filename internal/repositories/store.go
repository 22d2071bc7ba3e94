package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups every repository over one database handle. Inside
// WithinTransaction, fn receives a Repositories bound to the transaction, and
// everything done through it commits or rolls back together.
type Repositories interface {
	Products() ProductRepository
	Inventory() InventoryLedger
	Carts() CartRepository
	Orders() OrderRepository
	Customers() CustomerRepository
	Addresses() AddressRepository
	Payments() PaymentRepository
	Users() UserRepository
	WithinTransaction(ctx context.Context, fn func(tx Repositories) error) error
}

// Store is the GORM implementation of Repositories.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Products() ProductRepository { return NewGORMProductRepository(s.db) }
func (s *Store) Inventory() InventoryLedger { return NewGORMInventoryLedger(s.db) }
func (s *Store) Carts() CartRepository { return NewGORMCartRepository(s.db) }
func (s *Store) Orders() OrderRepository { return NewGORMOrderRepository(s.db) }
func (s *Store) Customers() CustomerRepository { return NewGORMCustomerRepository(s.db) }
func (s *Store) Addresses() AddressRepository { return NewGORMAddressRepository(s.db) }
func (s *Store) Payments() PaymentRepository { return NewGORMPaymentRepository(s.db) }
func (s *Store) Users() UserRepository { return NewGORMUserRepository(s.db) }

// WithinTransaction runs fn in a database transaction. A non-nil error from
// fn, or a panic, rolls the transaction back.
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
