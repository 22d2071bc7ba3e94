package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/services"
)

// ProductHandler handles HTTP requests for the catalog.
type ProductHandler struct {
	service *services.ProductService
	log     *zap.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService, log *zap.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		log:     logger.OrNop(log),
	}
}

// RegisterRoutes registers product routes. Reads are public; writes go
// through protect.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, protect fiber.Handler) {
	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleGetProducts)
	productRoutes.Get("/low-stock", protect, h.HandleLowStock)
	productRoutes.Get("/:id", h.HandleGetProductByID)
	productRoutes.Post("/", protect, h.HandleCreateProduct)
	productRoutes.Put("/:id", protect, h.HandleUpdateProduct)
	productRoutes.Delete("/:id", protect, h.HandleDeleteProduct)
	productRoutes.Post("/:id/restock", protect, h.HandleRestock)
}

// HandleGetProducts lists the catalog.
func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	products, err := h.service.GetAllProducts(c.UserContext())
	if err != nil {
		return respondError(c, h.log, "Could not retrieve products", err)
	}
	return c.JSON(products)
}

// HandleGetProductByID retrieves a single product.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, "Invalid product ID", err)
	}
	product, err := h.service.GetProductByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve product", err)
	}
	return c.JSON(product)
}

// HandleCreateProduct adds a product to the catalog.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	var product models.Product
	if err := c.BodyParser(&product); err != nil {
		return badRequest(c, err)
	}
	product.ID = 0

	if err := h.service.CreateProduct(c.UserContext(), &product); err != nil {
		return respondError(c, h.log, "Could not create product", err)
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

// HandleUpdateProduct replaces a product's attributes.
func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, "Invalid product ID", err)
	}
	var product models.Product
	if err := c.BodyParser(&product); err != nil {
		return badRequest(c, err)
	}
	product.ID = id

	if err := h.service.UpdateProduct(c.UserContext(), &product); err != nil {
		return respondError(c, h.log, "Could not update product", err)
	}
	updated, err := h.service.GetProductByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, "Could not retrieve product", err)
	}
	return c.JSON(updated)
}

// HandleDeleteProduct removes a product from the catalog.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, "Invalid product ID", err)
	}
	if err := h.service.DeleteProduct(c.UserContext(), id); err != nil {
		return respondError(c, h.log, "Could not delete product", err)
	}
	return c.JSON(fiber.Map{"message": "Product deleted successfully"})
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

// HandleRestock adds stock to a product.
func (h *ProductHandler) HandleRestock(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, "Invalid product ID", err)
	}
	var req restockRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	product, err := h.service.Restock(c.UserContext(), id, req.Quantity)
	if err != nil {
		return respondError(c, h.log, "Could not restock product", err)
	}
	return c.JSON(product)
}

// HandleLowStock lists tracked products at or below their minimum.
func (h *ProductHandler) HandleLowStock(c *fiber.Ctx) error {
	products, err := h.service.LowStock(c.UserContext())
	if err != nil {
		return respondError(c, h.log, "Could not retrieve products", err)
	}
	return c.JSON(products)
}
