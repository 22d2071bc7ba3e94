package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"storefront/internal/models"
)

// SessionHeader carries the guest session ID in both directions.
const SessionHeader = "X-Session-ID"

const localOwner = "cart_owner"

// CartOwner resolves who the request's cart belongs to. It must run after
// OptionalAuth: an authenticated user owns their cart, anyone else is a guest
// identified by SessionHeader. A guest without a session gets a new one,
// echoed back in the response header.
func CartOwner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID, ok := UserID(c); ok {
			c.Locals(localOwner, models.OwnerRef{UserID: userID})
			return c.Next()
		}

		sessionID := c.Get(SessionHeader)
		if sessionID == "" || len(sessionID) > 64 {
			sessionID = uuid.NewString()
		}
		c.Set(SessionHeader, sessionID)
		c.Locals(localOwner, models.OwnerRef{SessionID: sessionID})
		return c.Next()
	}
}

// Owner returns the owner resolved by CartOwner.
func Owner(c *fiber.Ctx) models.OwnerRef {
	owner, _ := c.Locals(localOwner).(models.OwnerRef)
	return owner
}
