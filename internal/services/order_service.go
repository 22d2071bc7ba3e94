package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

var orderStateTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range orderStateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusUpdate carries optional data for a status change.
type StatusUpdate struct {
	TrackingNumber string `json:"tracking_number,omitempty" validate:"omitempty,max=64"`
}

// OrderService handles business logic related to orders.
type OrderService struct {
	store  repositories.Repositories
	events EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(store repositories.Repositories, events EventPublisher, log *zap.Logger) *OrderService {
	if events == nil {
		events = NopPublisher{}
	}
	return &OrderService{
		store:  store,
		events: events,
		log:    logger.OrNop(log).Named("order"),
		now:    time.Now,
	}
}

// Get retrieves a single order by its ID.
func (s *OrderService) Get(ctx context.Context, id uint) (*models.Order, error) {
	return s.store.Orders().GetByID(ctx, id)
}

// GetByNumber retrieves a single order by its order number.
func (s *OrderService) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	return s.store.Orders().GetByNumber(ctx, number)
}

// List returns one page of all orders.
func (s *OrderService) List(ctx context.Context, page, limit int) ([]models.Order, int64, error) {
	page, limit = normalizePage(page, limit)
	return s.store.Orders().List(ctx, page, limit)
}

// ListForCustomer returns one page of a customer's orders.
func (s *OrderService) ListForCustomer(ctx context.Context, customerID uint, page, limit int) ([]models.Order, int64, error) {
	page, limit = normalizePage(page, limit)
	return s.store.Orders().ListByCustomer(ctx, customerID, page, limit)
}

// ListForUser returns one page of the orders of the customer linked to a
// user. A user who never bought anything has none.
func (s *OrderService) ListForUser(ctx context.Context, userID uint, page, limit int) ([]models.Order, int64, error) {
	customer, err := s.store.Customers().GetByUserID(ctx, userID)
	if errors.Is(err, models.ErrCustomerNotFound) {
		return []models.Order{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return s.ListForCustomer(ctx, customer.ID, page, limit)
}

// GetForUser retrieves an order only if it belongs to the user's customer.
func (s *OrderService) GetForUser(ctx context.Context, id, userID uint) (*models.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Customer == nil || order.Customer.UserID == nil || *order.Customer.UserID != userID {
		return nil, models.ErrOrderNotFound
	}
	return order, nil
}

// Cancel moves an order to cancelled and restores its stock.
func (s *OrderService) Cancel(ctx context.Context, id uint) (*models.Order, error) {
	return s.UpdateStatus(ctx, id, models.OrderStatusCancelled, StatusUpdate{})
}

// UpdateStatus applies one lifecycle transition with its side effects.
// Transitions outside the lifecycle, including repeating the current status,
// fail with *models.InvalidTransitionError and change nothing.
func (s *OrderService) UpdateStatus(ctx context.Context, id uint, target models.OrderStatus, upd StatusUpdate) (*models.Order, error) {
	if err := validateStruct(upd); err != nil {
		return nil, err
	}

	var (
		order *models.Order
		from  models.OrderStatus
	)
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		current, err := tx.Orders().GetByID(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if !CanTransition(from, target) {
			return &models.InvalidTransitionError{From: from, To: target}
		}

		now := s.now()
		fields := map[string]interface{}{}
		switch target {
		case models.OrderStatusShipped:
			if current.ShippedAt == nil {
				fields["shipped_at"] = now
			}
			if upd.TrackingNumber != "" {
				fields["tracking_number"] = upd.TrackingNumber
			}
		case models.OrderStatusDelivered:
			if current.DeliveredAt == nil {
				fields["delivered_at"] = now
			}
		case models.OrderStatusCancelled:
			fields["cancelled_at"] = now
		}

		ok, err := tx.Orders().TransitionStatus(ctx, id, from, target, fields)
		if err != nil {
			return err
		}
		if !ok {
			// Someone else moved the order first.
			latest, err := tx.Orders().GetByID(ctx, id)
			if err != nil {
				return err
			}
			return &models.InvalidTransitionError{From: latest.Status, To: target}
		}

		if target == models.OrderStatusCancelled {
			for _, it := range current.Items {
				if err := tx.Inventory().Restore(ctx, it.ProductID, it.Quantity); err != nil {
					return err
				}
			}
		}

		order, err = tx.Orders().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order status changed",
		zap.String("order_number", order.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	publishEvent(ctx, s.events, s.log, EventOrderStatusChanged, OrderStatusChangedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          target,
		ChangedAt:   order.UpdatedAt,
	})
	return order, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
