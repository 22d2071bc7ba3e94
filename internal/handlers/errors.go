package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/logger"
	"storefront/internal/models"
)

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	var (
		validationErr *models.ValidationError
		quantityErr   *models.InvalidQuantityError
		addressErr    *models.AddressRequiredError
		notFoundErr   *models.ProductNotFoundError
		stockErr      *models.InsufficientStockError
		transitionErr *models.InvalidTransitionError
		paymentErr    *models.PaymentRecordingError
		fiberErr      *fiber.Error
	)
	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &quantityErr),
		errors.As(err, &addressErr),
		errors.Is(err, models.ErrInvalidOwner),
		errors.Is(err, models.ErrCurrencyMismatch):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &notFoundErr),
		errors.Is(err, models.ErrCartNotFound),
		errors.Is(err, models.ErrCartItemNotFound),
		errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrCustomerNotFound),
		errors.Is(err, models.ErrAddressNotFound),
		errors.Is(err, models.ErrPaymentNotFound),
		errors.Is(err, models.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.As(err, &stockErr),
		errors.As(err, &transitionErr),
		errors.Is(err, models.ErrUserExists),
		errors.Is(err, models.ErrAccountRequired),
		errors.Is(err, models.ErrOrderAlreadyPaid):
		return fiber.StatusConflict
	case errors.As(err, &paymentErr):
		return fiber.StatusPaymentRequired
	case errors.Is(err, models.ErrInvalidCredentials):
		return fiber.StatusUnauthorized
	case errors.Is(err, models.ErrGatewayUnavailable):
		return fiber.StatusBadRequest
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}

// respondError writes err as a JSON error body. Internal errors are logged
// and their details withheld.
func respondError(c *fiber.Ctx, log *zap.Logger, message string, err error) error {
	status := statusFor(err)
	body := fiber.Map{"message": message}

	var (
		validationErr *models.ValidationError
		stockErr      *models.InsufficientStockError
	)
	switch {
	case status == fiber.StatusInternalServerError:
		log.Error(message, zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(body)
	case errors.As(err, &validationErr):
		body["errors"] = validationErr.Fields
	case errors.As(err, &stockErr):
		body["product_id"] = stockErr.ProductID
		body["requested"] = stockErr.Requested
		body["available"] = stockErr.Available
	}
	body["error"] = err.Error()
	return c.Status(status).JSON(body)
}

// badRequest reports an unparsable request body.
func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}

// paramID parses a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &models.ValidationError{Fields: map[string]string{name: "must be a positive integer"}}
	}
	return uint(id), nil
}

// ErrorHandler is the app-wide fallback for errors returned by handlers.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	log = logger.OrNop(log)
	return func(c *fiber.Ctx, err error) error {
		return respondError(c, log, "Request failed", err)
	}
}
