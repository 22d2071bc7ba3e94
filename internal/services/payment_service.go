package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// PaymentAttempt is a payment result reported by a gateway integration.
type PaymentAttempt struct {
	Method         models.PaymentMethod `json:"method" validate:"required,oneof=card paypal stub"`
	Amount         decimal.Decimal      `json:"amount"`
	Status         models.PaymentStatus `json:"status" validate:"required,oneof=pending completed failed cancelled"`
	TransactionRef string               `json:"transaction_ref" validate:"required,max=128"`
	FailureReason  string               `json:"failure_reason,omitempty" validate:"omitempty,max=255"`
}

// PaymentService records payments against orders. Payment problems never
// undo an order.
type PaymentService struct {
	store    repositories.Repositories
	gateways map[models.PaymentMethod]PaymentGateway
	events   EventPublisher
	log      *zap.Logger
	now      func() time.Time
}

// NewPaymentService creates a new PaymentService. gateways maps each payment
// method Pay supports to the gateway that charges it.
func NewPaymentService(store repositories.Repositories, gateways map[models.PaymentMethod]PaymentGateway, events EventPublisher, log *zap.Logger) *PaymentService {
	if events == nil {
		events = NopPublisher{}
	}
	return &PaymentService{
		store:    store,
		gateways: gateways,
		events:   events,
		log:      logger.OrNop(log).Named("payment"),
		now:      time.Now,
	}
}

// RecordAttempt appends a payment to an order. A second call with the same
// transaction reference returns the payment already recorded.
func (s *PaymentService) RecordAttempt(ctx context.Context, orderID uint, attempt PaymentAttempt) (*models.Payment, error) {
	if err := validateStruct(attempt); err != nil {
		return nil, err
	}
	if !attempt.Amount.IsPositive() {
		return nil, &models.ValidationError{Fields: map[string]string{"amount": "must be greater than 0"}}
	}

	var (
		payment  *models.Payment
		order    *models.Order
		moved    bool
		existing bool
	)
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		var err error
		if order, err = tx.Orders().GetByID(ctx, orderID); err != nil {
			return err
		}

		payment, err = tx.Payments().FindByTransaction(ctx, orderID, attempt.TransactionRef)
		if err == nil {
			existing = true
			return nil
		}
		if !errors.Is(err, models.ErrPaymentNotFound) {
			return err
		}

		payment = &models.Payment{
			OrderID:       order.ID,
			Method:        attempt.Method,
			TransactionID: attempt.TransactionRef,
			Status:        attempt.Status,
			Amount:        attempt.Amount.Round(2),
			Currency:      order.Currency,
			FailureReason: attempt.FailureReason,
		}
		if attempt.Status == models.PaymentStatusCompleted || attempt.Status == models.PaymentStatusFailed {
			now := s.now()
			payment.ProcessedAt = &now
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}

		if payment.Status == models.PaymentStatusCompleted {
			moved, err = s.applyCompletion(ctx, tx, order)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if existing {
		s.log.Debug("payment already recorded", zap.String("transaction_id", payment.TransactionID))
		return payment, nil
	}

	s.recorded(ctx, order, payment, moved)
	return payment, nil
}

// MarkCompleted completes a payment and moves a pending order to processing.
// Orders further along are left as they are.
func (s *PaymentService) MarkCompleted(ctx context.Context, paymentID uint, processedAt time.Time) (*models.Payment, error) {
	var (
		payment *models.Payment
		order   *models.Order
		moved   bool
		already bool
	)
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		var err error
		if payment, err = tx.Payments().GetByID(ctx, paymentID); err != nil {
			return err
		}
		if payment.Status == models.PaymentStatusCompleted {
			already = true
			return nil
		}
		if order, err = tx.Orders().GetByID(ctx, payment.OrderID); err != nil {
			return err
		}

		if processedAt.IsZero() {
			processedAt = s.now()
		}
		payment.Status = models.PaymentStatusCompleted
		payment.ProcessedAt = &processedAt
		payment.FailureReason = ""
		if err := tx.Payments().Update(ctx, payment); err != nil {
			return err
		}
		moved, err = s.applyCompletion(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	if already {
		return payment, nil
	}

	s.recorded(ctx, order, payment, moved)
	return payment, nil
}

// MarkFailed records a declined or errored payment. The order is untouched;
// the returned *models.PaymentRecordingError tells the caller to retry.
func (s *PaymentService) MarkFailed(ctx context.Context, paymentID uint, reason string) (*models.Payment, error) {
	var (
		payment *models.Payment
		order   *models.Order
	)
	err := s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		var err error
		if payment, err = tx.Payments().GetByID(ctx, paymentID); err != nil {
			return err
		}
		if order, err = tx.Orders().GetByID(ctx, payment.OrderID); err != nil {
			return err
		}
		if payment.Status == models.PaymentStatusCompleted {
			return nil
		}

		now := s.now()
		payment.Status = models.PaymentStatusFailed
		payment.FailureReason = reason
		payment.ProcessedAt = &now
		return tx.Payments().Update(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusCompleted {
		s.log.Warn("ignoring failure for completed payment", zap.Uint("payment_id", payment.ID))
		return payment, nil
	}

	s.recorded(ctx, order, payment, false)
	return payment, &models.PaymentRecordingError{
		OrderNumber: order.OrderNumber,
		PaymentID:   payment.ID,
		Err:         errors.New(reason),
	}
}

// IsFullyPaid reports whether completed payments cover the order total.
func (s *PaymentService) IsFullyPaid(ctx context.Context, orderID uint) (bool, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	return paidAmount(order.Payments).GreaterThanOrEqual(order.Total), nil
}

// ListForOrder returns an order's payments.
func (s *PaymentService) ListForOrder(ctx context.Context, orderID uint) ([]models.Payment, error) {
	if _, err := s.store.Orders().GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.Payments().ListByOrder(ctx, orderID)
}

// Pay charges the outstanding balance of an order through the gateway for
// method and records the outcome. A declined charge is recorded as a failed
// payment and returned as *models.PaymentRecordingError.
func (s *PaymentService) Pay(ctx context.Context, orderID uint, method models.PaymentMethod) (*models.Payment, error) {
	gateway, ok := s.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w %q", models.ErrGatewayUnavailable, method)
	}

	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, &models.InvalidTransitionError{From: order.Status, To: models.OrderStatusProcessing}
	}
	outstanding := order.Total.Sub(paidAmount(order.Payments))
	if !outstanding.IsPositive() {
		return nil, models.ErrOrderAlreadyPaid
	}

	ref, chargeErr := gateway.Charge(ctx, ChargeRequest{
		OrderNumber: order.OrderNumber,
		Amount:      outstanding,
		Currency:    order.Currency,
	})
	if ref == "" {
		ref = "local_" + uuid.NewString()
	}

	attempt := PaymentAttempt{
		Method:         method,
		Amount:         outstanding,
		Status:         models.PaymentStatusCompleted,
		TransactionRef: ref,
	}
	if chargeErr != nil {
		attempt.Status = models.PaymentStatusFailed
		attempt.FailureReason = chargeErr.Error()
	}

	payment, err := s.RecordAttempt(ctx, order.ID, attempt)
	if err != nil {
		return nil, err
	}
	if chargeErr != nil {
		return payment, &models.PaymentRecordingError{
			OrderNumber: order.OrderNumber,
			PaymentID:   payment.ID,
			Err:         chargeErr,
		}
	}
	return payment, nil
}

// applyCompletion moves a pending order to processing. It reports whether
// the order moved.
func (s *PaymentService) applyCompletion(ctx context.Context, tx repositories.Repositories, order *models.Order) (bool, error) {
	switch order.Status {
	case models.OrderStatusPending:
		ok, err := tx.Orders().TransitionStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusProcessing, nil)
		if err != nil {
			return false, err
		}
		if ok {
			order.Status = models.OrderStatusProcessing
		}
		return ok, nil
	case models.OrderStatusCancelled:
		s.log.Warn("payment completed for cancelled order", zap.String("order_number", order.OrderNumber))
	}
	return false, nil
}

func (s *PaymentService) recorded(ctx context.Context, order *models.Order, payment *models.Payment, moved bool) {
	s.log.Info("payment recorded",
		zap.String("order_number", order.OrderNumber),
		zap.Uint("payment_id", payment.ID),
		zap.String("status", string(payment.Status)),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)
	publishEvent(ctx, s.events, s.log, EventPaymentRecorded, PaymentRecordedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		PaymentID:   payment.ID,
		Status:      payment.Status,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
	})
	if moved {
		publishEvent(ctx, s.events, s.log, EventOrderStatusChanged, OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			From:        models.OrderStatusPending,
			To:          models.OrderStatusProcessing,
			ChangedAt:   s.now(),
		})
	}
}

func paidAmount(payments []models.Payment) decimal.Decimal {
	paid := decimal.Zero
	for _, p := range payments {
		if p.Status == models.PaymentStatusCompleted {
			paid = paid.Add(p.Amount)
		}
	}
	return paid
}
