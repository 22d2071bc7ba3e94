package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"go.uber.org/zap"

	"storefront/internal/logger"
)

// APIKeyHeader carries the shared key of back-office and gateway callers.
const APIKeyHeader = "X-API-Key"

// APIKeyRequired admits requests whose X-API-Key header equals key. An empty
// key rejects every request, so unconfigured routes stay closed.
func APIKeyRequired(key string, log *zap.Logger) fiber.Handler {
	log = logger.OrNop(log)
	return keyauth.New(keyauth.Config{
		KeyLookup: "header:" + APIKeyHeader,
		Validator: func(c *fiber.Ctx, presented string) (bool, error) {
			if key == "" {
				return false, nil
			}
			return subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1, nil
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Debug("API key rejected", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "A valid API key is required",
			})
		},
	})
}
