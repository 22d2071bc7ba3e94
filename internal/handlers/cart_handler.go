package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services"
)

// CartHandler handles HTTP requests for the caller's cart. The cart owner is
// resolved by middleware.CartOwner.
type CartHandler struct {
	service *services.CartService
	log     *zap.Logger
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(service *services.CartService, log *zap.Logger) *CartHandler {
	return &CartHandler{
		service: service,
		log:     logger.OrNop(log),
	}
}

// RegisterRoutes registers cart routes. protect guards the merge route,
// which needs a signed-in user; owner must resolve the cart owner for the rest.
func (h *CartHandler) RegisterRoutes(router fiber.Router, protect fiber.Handler, owner ...fiber.Handler) {
	router.Post("/cart/merge", protect, h.HandleMerge)

	cartRoutes := router.Group("/cart", owner...)
	cartRoutes.Get("/", h.HandleGetCart)
	cartRoutes.Delete("/", h.HandleClear)
	cartRoutes.Post("/items", h.HandleAddItem)
	cartRoutes.Patch("/items/:id", h.HandleUpdateItem)
	cartRoutes.Delete("/items/:id", h.HandleRemoveItem)
}

type addItemRequest struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type mergeRequest struct {
	SessionID string `json:"session_id"`
}

// HandleGetCart returns the caller's active cart, creating an empty one.
func (h *CartHandler) HandleGetCart(c *fiber.Ctx) error {
	cart, err := h.service.GetCart(c.UserContext(), middleware.Owner(c))
	if err != nil {
		return respondError(c, h.log, "Could not retrieve cart", err)
	}
	return c.JSON(cart)
}

// HandleAddItem adds a product to the cart or raises its quantity.
func (h *CartHandler) HandleAddItem(c *fiber.Ctx) error {
	var req addItemRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if req.ProductID == 0 {
		return respondError(c, h.log, "Validation failed", &models.ValidationError{Fields: map[string]string{
			"product_id": "is required",
		}})
	}

	cart, err := h.service.AddItem(c.UserContext(), middleware.Owner(c), req.ProductID, req.Quantity)
	if err != nil {
		return respondError(c, h.log, "Could not add item", err)
	}
	return c.Status(fiber.StatusCreated).JSON(cart)
}

// HandleUpdateItem sets the quantity of a cart line.
func (h *CartHandler) HandleUpdateItem(c *fiber.Ctx) error {
	itemID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, "Invalid item ID", err)
	}
	var req updateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	cart, err := h.service.UpdateItem(c.UserContext(), middleware.Owner(c), itemID, req.Quantity)
	if err != nil {
		return respondError(c, h.log, "Could not update item", err)
	}
	return c.JSON(cart)
}

// HandleRemoveItem deletes a cart line.
func (h *CartHandler) HandleRemoveItem(c *fiber.Ctx) error {
	itemID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, "Invalid item ID", err)
	}
	cart, err := h.service.RemoveItem(c.UserContext(), middleware.Owner(c), itemID)
	if err != nil {
		return respondError(c, h.log, "Could not remove item", err)
	}
	return c.JSON(cart)
}

// HandleClear empties the cart.
func (h *CartHandler) HandleClear(c *fiber.Ctx) error {
	cart, err := h.service.Clear(c.UserContext(), middleware.Owner(c))
	if err != nil {
		return respondError(c, h.log, "Could not clear cart", err)
	}
	return c.JSON(cart)
}

// HandleMerge moves a guest session's cart into the signed-in user's cart.
// The session comes from the body or, failing that, the session header.
func (h *CartHandler) HandleMerge(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Authentication required"})
	}
	var req mergeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
	}
	if req.SessionID == "" {
		req.SessionID = c.Get(middleware.SessionHeader)
	}
	if req.SessionID == "" {
		return respondError(c, h.log, "Validation failed", &models.ValidationError{Fields: map[string]string{
			"session_id": "is required",
		}})
	}

	cart, err := h.service.MergeSessionCart(c.UserContext(), req.SessionID, userID)
	if err != nil {
		return respondError(c, h.log, "Could not merge cart", err)
	}
	return c.JSON(cart)
}
