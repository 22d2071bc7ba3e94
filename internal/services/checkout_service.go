package services

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/cache"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/repositories"
)

// CustomerInput identifies a purchasing party by email.
type CustomerInput struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// AddressInput is an inline postal address.
type AddressInput struct {
	Line1      string `json:"line1" validate:"required,max=255"`
	Line2      string `json:"line2,omitempty" validate:"omitempty,max=255"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state,omitempty" validate:"omitempty,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
}

// CheckoutItem is one requested line. UnitPriceHint is accepted for client
// display purposes and never used for pricing.
type CheckoutItem struct {
	ProductID     uint             `json:"product_id" validate:"required"`
	Quantity      int              `json:"quantity"`
	UnitPriceHint *decimal.Decimal `json:"unit_price_hint,omitempty"`
}

// CheckoutRequest describes one checkout attempt. Lines come from Items, or
// from the cart of Cart when it is set. Saved address IDs are only honoured
// for a known customer; guests give their addresses inline. DiscountAmount is
// set by trusted callers and never decoded from a request body.
type CheckoutRequest struct {
	Items             []CheckoutItem       `json:"items" validate:"omitempty,dive"`
	Cart              *models.OwnerRef     `json:"-"`
	UserID            uint                 `json:"-"`
	CustomerID        uint                 `json:"customer_id,omitempty"`
	Customer          *CustomerInput       `json:"customer,omitempty"`
	ShippingAddressID uint                 `json:"shipping_address_id,omitempty"`
	ShippingAddress   *AddressInput        `json:"shipping_address,omitempty"`
	BillingAddressID  uint                 `json:"billing_address_id,omitempty"`
	BillingAddress    *AddressInput        `json:"billing_address,omitempty"`
	PaymentMethod     models.PaymentMethod `json:"payment_method" validate:"required,oneof=card paypal stub"`
	DiscountAmount    decimal.Decimal      `json:"-"`
}

// CheckoutConfig holds the checkout settings that come from configuration.
type CheckoutConfig struct {
	Currency            string
	OrderNumberAttempts int
	// NewOrderNumber overrides the order number generator.
	NewOrderNumber func() string
}

// CheckoutService turns a cart or a list of lines into an order. The whole
// sequence is one transaction: on any failure no order, customer, address
// or stock change survives.
type CheckoutService struct {
	store  repositories.Repositories
	cache  cache.CartCache
	calc   *pricing.Calculator
	events EventPublisher
	cfg    CheckoutConfig
	log    *zap.Logger
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(store repositories.Repositories, cartCache cache.CartCache, calc *pricing.Calculator, events EventPublisher, cfg CheckoutConfig, log *zap.Logger) *CheckoutService {
	if cartCache == nil {
		cartCache = cache.NopCartCache{}
	}
	if events == nil {
		events = NopPublisher{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.OrderNumberAttempts < 1 {
		cfg.OrderNumberAttempts = 5
	}
	if cfg.NewOrderNumber == nil {
		cfg.NewOrderNumber = NewOrderNumber
	}
	return &CheckoutService{
		store:  store,
		cache:  cartCache,
		calc:   calc,
		events: events,
		cfg:    cfg,
		log:    logger.OrNop(log).Named("checkout"),
	}
}

// NewOrderNumber returns "ORD-" followed by ten uppercase Crockford base32
// characters taken from the random part of a ULID.
func NewOrderNumber() string {
	id := ulid.Make().String()
	return "ORD-" + id[len(id)-10:]
}

type checkoutLine struct {
	product  *models.Product
	quantity int
}

// Execute runs a checkout and returns the created order with its items,
// customer and addresses loaded.
func (s *CheckoutService) Execute(ctx context.Context, req CheckoutRequest) (*models.Order, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		items, sourceCart, err := s.requestedItems(ctx, tx, req)
		if err != nil {
			return err
		}

		customer, err := s.resolveCustomer(ctx, tx, req)
		if err != nil {
			return err
		}
		shipping, billing, err := s.resolveAddresses(ctx, tx, customer.ID, req)
		if err != nil {
			return err
		}

		lines, err := s.loadLines(ctx, tx, items)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if err := s.checkStock(ctx, tx, l); err != nil {
				return err
			}
		}

		priced := make([]pricing.Line, 0, len(lines))
		orderItems := make([]models.OrderItem, 0, len(lines))
		for _, l := range lines {
			pl := pricing.Line{UnitPrice: l.product.Price, Quantity: l.quantity}
			if err := pricing.ValidateLine(pl); err != nil {
				return err
			}
			priced = append(priced, pl)
			orderItems = append(orderItems, models.OrderItem{
				ProductID:   l.product.ID,
				ProductName: l.product.Name,
				SKU:         l.product.SKU,
				UnitPrice:   l.product.Price,
				Quantity:    l.quantity,
				LineTotal:   pl.Total(),
			})
		}
		totals := s.calc.Compute(priced, req.DiscountAmount)
		if totals.Total.IsNegative() {
			return &models.ValidationError{Fields: map[string]string{
				"discount_amount": "must not exceed " + totals.Total.Add(totals.DiscountAmount).StringFixed(2),
			}}
		}

		number, err := s.allocateOrderNumber(ctx, tx)
		if err != nil {
			return err
		}
		order = &models.Order{
			OrderNumber:       number,
			CustomerID:        customer.ID,
			Status:            models.OrderStatusPending,
			Currency:          s.cfg.Currency,
			Subtotal:          totals.Subtotal,
			TaxAmount:         totals.TaxAmount,
			ShippingAmount:    totals.ShippingAmount,
			DiscountAmount:    totals.DiscountAmount,
			Total:             totals.Total,
			Items:             orderItems,
			PaymentMethod:     req.PaymentMethod,
			ShippingAddressID: shipping.ID,
			BillingAddressID:  billing.ID,
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}

		for _, l := range lines {
			if err := tx.Inventory().ReserveAndDecrement(ctx, l.product.ID, l.quantity); err != nil {
				return err
			}
		}

		if sourceCart != nil {
			if err := tx.Carts().ClearItems(ctx, sourceCart.ID); err != nil {
				return err
			}
			if err := tx.Carts().SetStatus(ctx, sourceCart.ID, models.CartStatusConverted); err != nil {
				return err
			}
		}

		order, err = tx.Orders().GetByID(ctx, order.ID)
		return err
	})
	if err != nil {
		s.log.Warn("checkout aborted", zap.Error(err))
		return nil, err
	}

	s.log.Info("order placed",
		zap.String("order_number", order.OrderNumber),
		zap.Uint("customer_id", order.CustomerID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("lines", len(order.Items)),
	)
	publishEvent(ctx, s.events, s.log, EventOrderCreated, newOrderCreatedEvent(order))
	if req.Cart != nil {
		if err := s.cache.Delete(ctx, *req.Cart); err != nil {
			s.log.Warn("cart cache invalidation failed", zap.String("owner", req.Cart.Key()), zap.Error(err))
		}
	}
	return order, nil
}

func (s *CheckoutService) validate(req CheckoutRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	fields := map[string]string{}
	if req.DiscountAmount.IsNegative() {
		fields["discount_amount"] = "must not be negative"
	}
	if req.Cart == nil && len(req.Items) == 0 {
		fields["items"] = "is required"
	}
	if req.CustomerID == 0 && req.UserID == 0 && req.Customer == nil {
		fields["customer"] = "is required"
	}
	if len(fields) > 0 {
		return &models.ValidationError{Fields: fields}
	}
	if req.Cart != nil {
		return req.Cart.Validate()
	}
	return nil
}

// requestedItems returns the lines to buy and, on the cart path, the cart
// they were taken from.
func (s *CheckoutService) requestedItems(ctx context.Context, tx repositories.Repositories, req CheckoutRequest) ([]CheckoutItem, *models.Cart, error) {
	if req.Cart == nil {
		return req.Items, nil, nil
	}
	cart, err := tx.Carts().FindActiveByOwner(ctx, *req.Cart)
	if errors.Is(err, models.ErrCartNotFound) {
		return nil, nil, &models.ValidationError{Fields: map[string]string{"items": "cart is empty"}}
	}
	if err != nil {
		return nil, nil, err
	}
	if len(cart.Items) == 0 {
		return nil, nil, &models.ValidationError{Fields: map[string]string{"items": "cart is empty"}}
	}
	items := make([]CheckoutItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, CheckoutItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return items, cart, nil
}

func (s *CheckoutService) resolveCustomer(ctx context.Context, tx repositories.Repositories, req CheckoutRequest) (*models.Customer, error) {
	customers := tx.Customers()
	if req.CustomerID != 0 {
		return customers.GetByID(ctx, req.CustomerID)
	}

	if req.UserID != 0 {
		customer, err := customers.GetByUserID(ctx, req.UserID)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, models.ErrCustomerNotFound) {
			return nil, err
		}
		if req.Customer == nil {
			return nil, models.ErrCustomerNotFound
		}
	}

	customer, err := customers.GetByEmail(ctx, req.Customer.Email)
	switch {
	case err == nil:
		if customer.UserID != nil && *customer.UserID != req.UserID {
			return nil, models.ErrAccountRequired
		}
		if req.UserID != 0 && customer.UserID == nil {
			if err := customers.LinkUser(ctx, customer.ID, req.UserID); err != nil {
				return nil, err
			}
			userID := req.UserID
			customer.UserID = &userID
		}
		return customer, nil
	case !errors.Is(err, models.ErrCustomerNotFound):
		return nil, err
	}

	customer = &models.Customer{
		FirstName: strings.TrimSpace(req.Customer.FirstName),
		LastName:  strings.TrimSpace(req.Customer.LastName),
		Email:     req.Customer.Email,
		Phone:     req.Customer.Phone,
	}
	if req.UserID != 0 {
		userID := req.UserID
		customer.UserID = &userID
	}
	if err := customers.Create(ctx, customer); err != nil {
		return nil, err
	}
	s.log.Debug("created customer", zap.Uint("customer_id", customer.ID))
	return customer, nil
}

// resolveAddresses returns the shipping and billing addresses. Billing
// falls back to shipping.
func (s *CheckoutService) resolveAddresses(ctx context.Context, tx repositories.Repositories, customerID uint, req CheckoutRequest) (*models.Address, *models.Address, error) {
	if req.UserID == 0 && req.CustomerID == 0 {
		req.ShippingAddressID, req.BillingAddressID = 0, 0
	}
	shipping, err := s.resolveAddress(ctx, tx, customerID, req.ShippingAddressID, req.ShippingAddress)
	if err != nil {
		return nil, nil, err
	}
	if shipping == nil {
		return nil, nil, &models.AddressRequiredError{Kind: "shipping"}
	}

	billing, err := s.resolveAddress(ctx, tx, customerID, req.BillingAddressID, req.BillingAddress)
	if err != nil {
		return nil, nil, err
	}
	if billing == nil {
		billing = shipping
	}
	return shipping, billing, nil
}

func (s *CheckoutService) resolveAddress(ctx context.Context, tx repositories.Repositories, customerID, id uint, in *AddressInput) (*models.Address, error) {
	if id != 0 {
		return tx.Addresses().GetForCustomer(ctx, id, customerID)
	}
	if in == nil {
		return nil, nil
	}
	address := &models.Address{
		CustomerID: customerID,
		Line1:      in.Line1,
		Line2:      in.Line2,
		City:       in.City,
		State:      in.State,
		PostalCode: in.PostalCode,
		Country:    strings.ToUpper(in.Country),
	}
	if err := tx.Addresses().Create(ctx, address); err != nil {
		return nil, err
	}
	return address, nil
}

// SavedAddresses returns the addresses of the customer linked to a user, for
// use as shipping_address_id and billing_address_id.
func (s *CheckoutService) SavedAddresses(ctx context.Context, userID uint) ([]models.Address, error) {
	customer, err := s.store.Customers().GetByUserID(ctx, userID)
	if errors.Is(err, models.ErrCustomerNotFound) {
		return []models.Address{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.store.Addresses().ListByCustomer(ctx, customer.ID)
}

// loadLines merges repeated products into one line, keeping first-seen
// order, and loads each product.
func (s *CheckoutService) loadLines(ctx context.Context, tx repositories.Repositories, items []CheckoutItem) ([]checkoutLine, error) {
	index := make(map[uint]int, len(items))
	var merged []CheckoutItem
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, &models.InvalidQuantityError{Quantity: it.Quantity}
		}
		if i, ok := index[it.ProductID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}

	lines := make([]checkoutLine, 0, len(merged))
	for _, it := range merged {
		product, err := tx.Products().GetByID(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, checkoutLine{product: product, quantity: it.Quantity})
	}
	return lines, nil
}

func (s *CheckoutService) checkStock(ctx context.Context, tx repositories.Repositories, l checkoutLine) error {
	ok, err := tx.Inventory().CheckAvailable(ctx, l.product.ID, l.quantity)
	if err != nil {
		return err
	}
	if !ok {
		return &models.InsufficientStockError{
			ProductID:   l.product.ID,
			ProductName: l.product.Name,
			Requested:   l.quantity,
			Available:   l.product.StockQuantity,
		}
	}
	return nil
}

func (s *CheckoutService) allocateOrderNumber(ctx context.Context, tx repositories.Repositories) (string, error) {
	for i := 0; i < s.cfg.OrderNumberAttempts; i++ {
		number := s.cfg.NewOrderNumber()
		exists, err := tx.Orders().NumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
		s.log.Debug("order number collision", zap.String("order_number", number), zap.Int("attempt", i+1))
	}
	return "", &models.OrderNumberCollisionError{Attempts: s.cfg.OrderNumberAttempts}
}
