package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/logger"
	"storefront/internal/services"
)

const (
	localUserID   = "user_id"
	localUsername = "username"
)

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(authService *services.AuthService, log *zap.Logger) fiber.Handler {
	log = logger.OrNop(log)
	return func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}
		if ok, err := authenticate(c, authService, log); !ok {
			return err
		}
		return c.Next()
	}
}

// OptionalAuth authenticates the request when an Authorization header is
// present and lets anonymous requests through. A bad token is still rejected.
func OptionalAuth(authService *services.AuthService, log *zap.Logger) fiber.Handler {
	log = logger.OrNop(log)
	return func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) == "" {
			return c.Next()
		}
		if ok, err := authenticate(c, authService, log); !ok {
			return err
		}
		return c.Next()
	}
}

// authenticate validates the bearer token and stores its claims in locals.
// On failure it writes the 401 response and reports false.
func authenticate(c *fiber.Ctx, authService *services.AuthService, log *zap.Logger) (bool, error) {
	// Expected format: "Bearer <token>"
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if !(len(parts) == 2 && parts[0] == "Bearer") {
		return false, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Authorization header format must be 'Bearer <token>'",
		})
	}

	claims, err := authService.ValidateToken(parts[1])
	if err == nil {
		var userID uint
		if userID, err = services.UserIDFromClaims(claims); err == nil {
			c.Locals(localUserID, userID)
			c.Locals(localUsername, claims["username"])
			return true, nil
		}
	}

	log.Debug("JWT validation failed", zap.String("path", c.Path()), zap.Error(err))
	return false, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"message": "Invalid or expired token",
		"error":   err.Error(),
	})
}

// UserID returns the authenticated user's ID, if any.
func UserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(localUserID).(uint)
	return id, ok && id != 0
}
