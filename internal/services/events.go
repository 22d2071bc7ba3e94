package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/models"
)

// Routing keys of the order lifecycle events.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentRecorded    = "payment.recorded"
)

// EventPublisher delivers lifecycle events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

type EventLine struct {
	ProductID uint            `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderCreatedEvent struct {
	OrderID     uint               `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	CustomerID  uint               `json:"customer_id"`
	Status      models.OrderStatus `json:"status"`
	Currency    string             `json:"currency"`
	Total       decimal.Decimal    `json:"total"`
	Items       []EventLine        `json:"items"`
	CreatedAt   time.Time          `json:"created_at"`
}

type OrderStatusChangedEvent struct {
	OrderID     uint               `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	From        models.OrderStatus `json:"from"`
	To          models.OrderStatus `json:"to"`
	ChangedAt   time.Time          `json:"changed_at"`
}

type PaymentRecordedEvent struct {
	OrderID     uint                 `json:"order_id"`
	OrderNumber string               `json:"order_number"`
	PaymentID   uint                 `json:"payment_id"`
	Status      models.PaymentStatus `json:"status"`
	Amount      decimal.Decimal      `json:"amount"`
	Currency    string               `json:"currency"`
}

func newOrderCreatedEvent(order *models.Order) OrderCreatedEvent {
	lines := make([]EventLine, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, EventLine{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return OrderCreatedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Status:      order.Status,
		Currency:    order.Currency,
		Total:       order.Total,
		Items:       lines,
		CreatedAt:   order.CreatedAt,
	}
}

// publishEvent is best effort: a committed order never fails because the
// broker is unavailable.
func publishEvent(ctx context.Context, pub EventPublisher, log *zap.Logger, routingKey string, payload interface{}) {
	if err := pub.Publish(ctx, routingKey, payload); err != nil {
		log.Warn("failed to publish event", zap.String("routing_key", routingKey), zap.Error(err))
		return
	}
	log.Debug("published event", zap.String("routing_key", routingKey))
}
