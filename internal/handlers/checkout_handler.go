package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/services"
)

// CheckoutHandler turns carts and explicit item lists into orders.
type CheckoutHandler struct {
	service *services.CheckoutService
	log     *zap.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(service *services.CheckoutService, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		log:     logger.OrNop(log),
	}
}

// RegisterRoutes registers the checkout routes. owner must resolve the cart
// owner; the saved address list goes through protect.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router, protect fiber.Handler, owner ...fiber.Handler) {
	router.Get("/addresses", protect, h.HandleGetAddresses)
	router.Post("/checkout", append(owner, h.HandleCheckout)...)
}

// HandleCheckout places an order. Without items in the body the caller's
// cart is checked out. Prices and totals always come from the server.
func (h *CheckoutHandler) HandleCheckout(c *fiber.Ctx) error {
	var req services.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	// Customers are identified by token or inline details, never by raw ID,
	// and there is no client-side discount.
	req.CustomerID = 0
	req.DiscountAmount = decimal.Zero
	if userID, ok := middleware.UserID(c); ok {
		req.UserID = userID
	}
	if len(req.Items) == 0 {
		owner := middleware.Owner(c)
		req.Cart = &owner
	}

	order, err := h.service.Execute(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.log, "Checkout failed", err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleGetAddresses lists the signed-in user's saved addresses.
func (h *CheckoutHandler) HandleGetAddresses(c *fiber.Ctx) error {
	userID, _ := middleware.UserID(c)
	addresses, err := h.service.SavedAddresses(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve addresses", err)
	}
	return c.JSON(fiber.Map{"addresses": addresses})
}
