package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/services"
)

// AdminHandler serves back-office order management.
type AdminHandler struct {
	orders *services.OrderService
	log    *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(orders *services.OrderService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		orders: orders,
		log:    logger.OrNop(log),
	}
}

// RegisterRoutes registers the back-office routes under /admin behind
// adminKey.
func (h *AdminHandler) RegisterRoutes(router fiber.Router, adminKey fiber.Handler) {
	adminRoutes := router.Group("/admin", adminKey)
	adminRoutes.Get("/orders", h.HandleListOrders)
	adminRoutes.Get("/orders/number/:number", h.HandleGetOrderByNumber)
	adminRoutes.Get("/orders/:id", h.HandleGetOrder)
	adminRoutes.Patch("/orders/:id/status", h.HandleUpdateOrderStatus)
}

type statusRequest struct {
	Status         models.OrderStatus `json:"status"`
	TrackingNumber string             `json:"tracking_number"`
}

// HandleListOrders lists every order, newest first.
func (h *AdminHandler) HandleListOrders(c *fiber.Ctx) error {
	page, limit := c.QueryInt("page", 1), c.QueryInt("limit", 20)

	orders, total, err := h.orders.List(c.UserContext(), page, limit)
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

// HandleGetOrderByNumber looks an order up by its public order number.
func (h *AdminHandler) HandleGetOrderByNumber(c *fiber.Ctx) error {
	order, err := h.orders.GetByNumber(c.UserContext(), c.Params("number"))
	if err != nil {
		return respondError(c, h.log, "Could not retrieve order", err)
	}
	return c.JSON(order)
}

// HandleGetOrder retrieves any order by ID.
func (h *AdminHandler) HandleGetOrder(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, "Invalid order ID", err)
	}
	order, err := h.orders.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve order", err)
	}
	return c.JSON(order)
}

// HandleUpdateOrderStatus moves an order along its lifecycle.
func (h *AdminHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, "Invalid order ID", err)
	}
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if !req.Status.IsValid() {
		return respondError(c, h.log, "Validation failed", &models.ValidationError{Fields: map[string]string{
			"status": "must be one of pending processing shipped delivered cancelled",
		}})
	}

	order, err := h.orders.UpdateStatus(c.UserContext(), id, req.Status, services.StatusUpdate{TrackingNumber: req.TrackingNumber})
	if err != nil {
		return respondError(c, h.log, "Order update failed", err)
	}
	return c.JSON(order)
}
