package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/services"
)

// PaymentHandler receives payment outcomes from gateway integrations.
type PaymentHandler struct {
	service *services.PaymentService
	log     *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *services.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		log:     logger.OrNop(log),
	}
}

// RegisterRoutes registers the gateway callbacks under /gateway. gatewayKey
// must authenticate the calling gateway; customers never reach these routes.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router, gatewayKey fiber.Handler) {
	gatewayRoutes := router.Group("/gateway", gatewayKey)
	gatewayRoutes.Post("/orders/:id/payments", h.HandleRecordAttempt)
	gatewayRoutes.Post("/payments/:id/complete", h.HandleComplete)
	gatewayRoutes.Post("/payments/:id/fail", h.HandleFail)
}

// attemptRequest is a payment a gateway already processed.
type attemptRequest struct {
	Method         models.PaymentMethod `json:"method"`
	TransactionRef string               `json:"transaction_ref"`
	Amount         string               `json:"amount"`
	Status         models.PaymentStatus `json:"status"`
	FailureReason  string               `json:"failure_reason"`
}

func (r attemptRequest) attempt() (services.PaymentAttempt, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return services.PaymentAttempt{}, err
	}
	return services.PaymentAttempt{
		Method:         r.Method,
		Amount:         amount,
		Status:         r.Status,
		TransactionRef: r.TransactionRef,
		FailureReason:  r.FailureReason,
	}, nil
}

type completeRequest struct {
	ProcessedAt *time.Time `json:"processed_at"`
}

type failRequest struct {
	Reason string `json:"reason"`
}

// HandleRecordAttempt records a gateway's payment result against an order.
// Replaying the same transaction reference returns the recorded payment.
func (h *PaymentHandler) HandleRecordAttempt(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, "Invalid order ID", err)
	}
	var req attemptRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	attempt, err := req.attempt()
	if err != nil {
		return respondError(c, h.log, "Validation failed", err)
	}

	payment, err := h.service.RecordAttempt(c.UserContext(), id, attempt)
	if err != nil {
		return respondPayment(c, h.log, payment, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payment)
}

// HandleComplete marks a payment completed.
func (h *PaymentHandler) HandleComplete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, "Invalid payment ID", err)
	}
	var req completeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
	}
	var processedAt time.Time
	if req.ProcessedAt != nil {
		processedAt = *req.ProcessedAt
	}

	payment, err := h.service.MarkCompleted(c.UserContext(), id, processedAt)
	if err != nil {
		return respondError(c, h.log, "Could not complete payment", err)
	}
	return c.JSON(payment)
}

// HandleFail marks a payment failed. The order is left in place.
func (h *PaymentHandler) HandleFail(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, "Invalid payment ID", err)
	}
	var req failRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if req.Reason == "" {
		return respondError(c, h.log, "Validation failed", &models.ValidationError{Fields: map[string]string{
			"reason": "is required",
		}})
	}

	payment, err := h.service.MarkFailed(c.UserContext(), id, req.Reason)
	if err != nil {
		return respondPayment(c, h.log, payment, err)
	}
	// The payment was already completed; the failure report is ignored.
	return c.JSON(payment)
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, &models.ValidationError{Fields: map[string]string{field: "must be a decimal number"}}
	}
	return amount, nil
}
