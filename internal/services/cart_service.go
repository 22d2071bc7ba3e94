package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storefront/internal/cache"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/repositories"
)

// DefaultSessionTTL is how long a guest cart lives when CartConfig leaves it unset.
const DefaultSessionTTL = 72 * time.Hour

// CartConfig holds the cart settings that come from configuration.
type CartConfig struct {
	Currency   string
	SessionTTL time.Duration
}

// CartService manages carts for an explicit owner. Every mutation recomputes
// totals through the pricing calculator and runs in one transaction.
type CartService struct {
	store repositories.Repositories
	cache cache.CartCache
	calc  *pricing.Calculator
	cfg   CartConfig
	log   *zap.Logger
	now   func() time.Time
}

// NewCartService creates a new CartService. A nil cartCache disables caching.
func NewCartService(store repositories.Repositories, cartCache cache.CartCache, calc *pricing.Calculator, cfg CartConfig, log *zap.Logger) *CartService {
	if cartCache == nil {
		cartCache = cache.NopCartCache{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &CartService{
		store: store,
		cache: cartCache,
		calc:  calc,
		cfg:   cfg,
		log:   logger.OrNop(log).Named("cart"),
		now:   time.Now,
	}
}

// GetOrCreate returns the owner's active cart, creating an empty one if none
// exists or the guest cart has expired.
func (s *CartService) GetOrCreate(ctx context.Context, owner models.OwnerRef) (*models.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	var cart *models.Cart
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		var err error
		cart, err = s.getOrCreate(ctx, tx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// GetCart is GetOrCreate served through the cart cache.
func (s *CartService) GetCart(ctx context.Context, owner models.OwnerRef) (*models.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	cached, err := s.cache.Get(ctx, owner)
	if err == nil && !cached.IsExpired(s.now()) {
		return cached, nil
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		s.log.Warn("cart cache read failed", zap.String("owner", owner.Key()), zap.Error(err))
	}

	cart, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, owner, cart); err != nil {
		s.log.Warn("cart cache write failed", zap.String("owner", owner.Key()), zap.Error(err))
	}
	return cart, nil
}

// AddItem adds qty of a product, merging with an existing line for it. Stock
// is checked against the merged quantity.
func (s *CartService) AddItem(ctx context.Context, owner models.OwnerRef, productID uint, qty int) (*models.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, &models.InvalidQuantityError{Quantity: qty}
	}

	var cart *models.Cart
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		var err error
		if cart, err = s.getOrCreate(ctx, tx, owner); err != nil {
			return err
		}
		product, err := tx.Products().GetByID(ctx, productID)
		if err != nil {
			return err
		}

		item := cart.ItemForProduct(productID)
		merged := qty
		if item != nil {
			merged += item.Quantity
		}
		if err := s.ensureStock(ctx, tx, product, merged); err != nil {
			return err
		}

		if item == nil {
			cart.Items = append(cart.Items, models.CartItem{CartID: cart.ID, ProductID: product.ID})
			item = &cart.Items[len(cart.Items)-1]
		}
		if err := s.setLine(ctx, tx, item, product, merged); err != nil {
			return err
		}
		return s.recalculate(ctx, tx, cart)
	})
	if err != nil {
		s.log.Debug("add item rejected", zap.String("owner", owner.Key()), zap.Uint("product_id", productID), zap.Error(err))
		return nil, err
	}
	s.invalidate(ctx, owner)
	return cart, nil
}

// UpdateItem sets a line's quantity. Zero is rejected; use RemoveItem.
func (s *CartService) UpdateItem(ctx context.Context, owner models.OwnerRef, itemID uint, qty int) (*models.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, &models.InvalidQuantityError{Quantity: qty}
	}

	var cart *models.Cart
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		var err error
		if cart, err = tx.Carts().FindActiveByOwner(ctx, owner); err != nil {
			return err
		}
		item := itemByID(cart, itemID)
		if item == nil {
			return models.ErrCartItemNotFound
		}
		product, err := tx.Products().GetByID(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if err := s.ensureStock(ctx, tx, product, qty); err != nil {
			return err
		}
		if err := s.setLine(ctx, tx, item, product, qty); err != nil {
			return err
		}
		return s.recalculate(ctx, tx, cart)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, owner)
	return cart, nil
}

// RemoveItem deletes one line.
func (s *CartService) RemoveItem(ctx context.Context, owner models.OwnerRef, itemID uint) (*models.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	var cart *models.Cart
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		var err error
		if cart, err = tx.Carts().FindActiveByOwner(ctx, owner); err != nil {
			return err
		}
		if err := tx.Carts().DeleteItem(ctx, cart.ID, itemID); err != nil {
			return err
		}
		kept := cart.Items[:0]
		for _, it := range cart.Items {
			if it.ID != itemID {
				kept = append(kept, it)
			}
		}
		cart.Items = kept
		return s.recalculate(ctx, tx, cart)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, owner)
	return cart, nil
}

// Clear empties the owner's cart.
func (s *CartService) Clear(ctx context.Context, owner models.OwnerRef) (*models.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	var cart *models.Cart
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		var err error
		if cart, err = s.getOrCreate(ctx, tx, owner); err != nil {
			return err
		}
		if err := tx.Carts().ClearItems(ctx, cart.ID); err != nil {
			return err
		}
		cart.Items = []models.CartItem{}
		return s.recalculate(ctx, tx, cart)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, owner)
	return cart, nil
}

// MergeSessionCart folds a guest cart into the user's cart after sign-in.
// Stock is re-checked for every merged line and the guest cart is converted.
func (s *CartService) MergeSessionCart(ctx context.Context, sessionID string, userID uint) (*models.Cart, error) {
	guest := models.OwnerRef{SessionID: sessionID}
	user := models.OwnerRef{UserID: userID}
	if err := guest.Validate(); err != nil {
		return nil, err
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	var cart *models.Cart
	merged := 0
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		var err error
		if cart, err = s.getOrCreate(ctx, tx, user); err != nil {
			return err
		}
		guestCart, err := tx.Carts().FindActiveByOwner(ctx, guest)
		if errors.Is(err, models.ErrCartNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if guestCart.IsExpired(s.now()) {
			return tx.Carts().SetStatus(ctx, guestCart.ID, models.CartStatusExpired)
		}

		for _, gi := range guestCart.Items {
			product, err := tx.Products().GetByID(ctx, gi.ProductID)
			if err != nil {
				return err
			}
			item := cart.ItemForProduct(gi.ProductID)
			qty := gi.Quantity
			if item != nil {
				qty += item.Quantity
			}
			if err := s.ensureStock(ctx, tx, product, qty); err != nil {
				return err
			}
			if item == nil {
				cart.Items = append(cart.Items, models.CartItem{CartID: cart.ID, ProductID: product.ID})
				item = &cart.Items[len(cart.Items)-1]
			}
			if err := s.setLine(ctx, tx, item, product, qty); err != nil {
				return err
			}
			merged++
		}

		if err := tx.Carts().ClearItems(ctx, guestCart.ID); err != nil {
			return err
		}
		if err := tx.Carts().SetStatus(ctx, guestCart.ID, models.CartStatusConverted); err != nil {
			return err
		}
		return s.recalculate(ctx, tx, cart)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, guest)
	s.invalidate(ctx, user)
	s.log.Info("merged session cart", zap.String("session_id", sessionID), zap.Uint("user_id", userID), zap.Int("lines", merged))
	return cart, nil
}

// ExpireSessionCarts deactivates guest carts whose TTL has passed at now.
func (s *CartService) ExpireSessionCarts(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.Carts().ExpireSessionCarts(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired session carts", zap.Int64("count", n))
	}
	return n, nil
}

// Invalidate drops the cached copy of the owner's cart.
func (s *CartService) Invalidate(ctx context.Context, owner models.OwnerRef) {
	s.invalidate(ctx, owner)
}

func (s *CartService) getOrCreate(ctx context.Context, tx repositories.Repositories, owner models.OwnerRef) (*models.Cart, error) {
	cart, err := tx.Carts().FindActiveByOwner(ctx, owner)
	switch {
	case err == nil && !cart.IsExpired(s.now()):
		return cart, nil
	case err == nil:
		if err := tx.Carts().SetStatus(ctx, cart.ID, models.CartStatusExpired); err != nil {
			return nil, err
		}
	case !errors.Is(err, models.ErrCartNotFound):
		return nil, err
	}

	cart = &models.Cart{
		Status:   models.CartStatusActive,
		Currency: s.cfg.Currency,
		Items:    []models.CartItem{},
	}
	if owner.IsGuest() {
		sessionID := owner.SessionID
		expires := s.now().Add(s.cfg.SessionTTL)
		cart.SessionID = &sessionID
		cart.ExpiresAt = &expires
	} else {
		userID := owner.UserID
		cart.UserID = &userID
	}
	s.applyTotals(cart)
	if err := tx.Carts().Create(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) ensureStock(ctx context.Context, tx repositories.Repositories, product *models.Product, qty int) error {
	ok, err := tx.Inventory().CheckAvailable(ctx, product.ID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return &models.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   qty,
			Available:   product.StockQuantity,
		}
	}
	return nil
}

// setLine refreshes a line's snapshot from the current product and saves it.
func (s *CartService) setLine(ctx context.Context, tx repositories.Repositories, item *models.CartItem, product *models.Product, qty int) error {
	line := pricing.Line{UnitPrice: product.Price, Quantity: qty}
	if err := pricing.ValidateLine(line); err != nil {
		return err
	}
	item.ProductName = product.Name
	item.SKU = product.SKU
	item.UnitPrice = product.Price
	item.Quantity = qty
	item.LineTotal = line.Total()
	return tx.Carts().SaveItem(ctx, item)
}

func (s *CartService) recalculate(ctx context.Context, tx repositories.Repositories, cart *models.Cart) error {
	s.applyTotals(cart)
	if err := tx.Carts().SaveTotals(ctx, cart); err != nil {
		return fmt.Errorf("failed to recalculate cart %d: %w", cart.ID, err)
	}
	return nil
}

func (s *CartService) applyTotals(cart *models.Cart) {
	totals := s.calc.Compute(pricing.CartLines(cart.Items), cart.DiscountAmount)
	cart.Subtotal = totals.Subtotal
	cart.TaxAmount = totals.TaxAmount
	cart.ShippingAmount = totals.ShippingAmount
	cart.DiscountAmount = totals.DiscountAmount
	cart.Total = totals.Total
}

func (s *CartService) invalidate(ctx context.Context, owner models.OwnerRef) {
	if err := s.cache.Delete(ctx, owner); err != nil {
		s.log.Warn("cart cache invalidation failed", zap.String("owner", owner.Key()), zap.Error(err))
	}
}

func itemByID(cart *models.Cart, itemID uint) *models.CartItem {
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			return &cart.Items[i]
		}
	}
	return nil
}
