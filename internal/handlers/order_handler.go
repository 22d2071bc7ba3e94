package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services"
)

// OrderHandler handles HTTP requests for orders and their payments.
type OrderHandler struct {
	service  *services.OrderService
	payments *services.PaymentService
	log      *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, payments *services.PaymentService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:  service,
		payments: payments,
		log:      logger.OrNop(log),
	}
}

// RegisterRoutes registers the customer's order routes. Every route goes
// through protect and only reaches the signed-in user's own orders.
func (h *OrderHandler) RegisterRoutes(router fiber.Router, protect fiber.Handler) {
	orderRoutes := router.Group("/orders", protect)
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/:id/cancel", h.HandleCancelOrder)
	orderRoutes.Get("/:id/payments", h.HandleListPayments)
	orderRoutes.Post("/:id/payments", h.HandlePay)
}

// payRequest names the gateway to charge. Payment outcomes are reported by
// gateways, so a customer sending one is refused.
type payRequest struct {
	Method         models.PaymentMethod `json:"method"`
	TransactionRef string               `json:"transaction_ref"`
	Status         models.PaymentStatus `json:"status"`
	Amount         string               `json:"amount"`
}

func (r payRequest) validate() error {
	fields := map[string]string{}
	if r.TransactionRef != "" {
		fields["transaction_ref"] = "is assigned by the payment gateway"
	}
	if r.Status != "" {
		fields["status"] = "is reported by the payment gateway"
	}
	if r.Amount != "" {
		fields["amount"] = "is the outstanding order balance"
	}
	if len(fields) > 0 {
		return &models.ValidationError{Fields: fields}
	}
	return nil
}

// HandleGetOrders lists the signed-in user's orders, newest first.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	userID, _ := middleware.UserID(c)
	page, limit := c.QueryInt("page", 1), c.QueryInt("limit", 20)

	orders, total, err := h.service.ListForUser(c.UserContext(), userID, page, limit)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve orders", err)
	}
	return c.JSON(fiber.Map{
		"orders": orders,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

// HandleGetOrderByID retrieves one of the signed-in user's orders.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.ownOrder(c)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve order", err)
	}
	return c.JSON(order)
}

// HandleCancelOrder cancels one of the signed-in user's orders.
func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	order, err := h.ownOrder(c)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve order", err)
	}
	order, err = h.service.Cancel(c.UserContext(), order.ID)
	if err != nil {
		return respondError(c, h.log, "Could not cancel order", err)
	}
	return c.JSON(order)
}

// HandleListPayments lists the payments of one of the user's orders.
func (h *OrderHandler) HandleListPayments(c *fiber.Ctx) error {
	order, err := h.ownOrder(c)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve order", err)
	}
	payments, err := h.payments.ListForOrder(c.UserContext(), order.ID)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve payments", err)
	}
	paid, err := h.payments.IsFullyPaid(c.UserContext(), order.ID)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve payments", err)
	}
	return c.JSON(fiber.Map{
		"payments":   payments,
		"fully_paid": paid,
	})
}

// HandlePay charges the outstanding balance of one of the user's orders
// through the gateway for the requested method.
func (h *OrderHandler) HandlePay(c *fiber.Ctx) error {
	order, err := h.ownOrder(c)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve order", err)
	}
	var req payRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.validate(); err != nil {
		return respondError(c, h.log, "Validation failed", err)
	}

	payment, err := h.payments.Pay(c.UserContext(), order.ID, req.Method)
	if err != nil {
		return respondPayment(c, h.log, payment, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payment)
}

// ownOrder loads the order named by the :id parameter if it belongs to the
// signed-in user.
func (h *OrderHandler) ownOrder(c *fiber.Ctx) (*models.Order, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	userID, _ := middleware.UserID(c)
	return h.service.GetForUser(c.UserContext(), id, userID)
}

// respondPayment reports a payment that was recorded but did not succeed
// alongside the recorded payment.
func respondPayment(c *fiber.Ctx, log *zap.Logger, payment *models.Payment, err error) error {
	var recordingErr *models.PaymentRecordingError
	if payment != nil && errors.As(err, &recordingErr) {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"message": "Payment failed",
			"error":   err.Error(),
			"payment": payment,
		})
	}
	return respondError(c, log, "Could not record payment", err)
}
