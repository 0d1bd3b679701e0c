package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// PartyIDKey is the fiber local holding the caller's party ID.
const PartyIDKey = "partyID"

// EnsurePartyID resolves the caller's party ID from the X-Party-ID header,
// falling back to the partyId query parameter for clients that cannot set
// headers on a websocket handshake.
func EnsurePartyID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Locals(PartyIDKey) != nil {
			return c.Next()
		}

		partyID := c.Get("X-Party-ID")
		if partyID == "" {
			partyID = c.Query("partyId")
		}
		if partyID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Party ID is required. Please ensure client is properly initialized.",
			})
		}

		c.Locals(PartyIDKey, partyID)
		return c.Next()
	}
}

// PartyID returns the party ID stored by EnsurePartyID.
func PartyID(c *fiber.Ctx) string {
	id, _ := c.Locals(PartyIDKey).(string)
	return id
}
