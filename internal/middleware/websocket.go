package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketUpgrade ensures that requests to WebSocket endpoints are valid WebSocket connection attempts
// naming a match and a party.
func WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		if c.Params("key") == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "match key is required",
			})
		}

		// The party ID has to survive the upgrade; it is read from locals by
		// the connection handler.
		if PartyID(c) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "party ID is required",
			})
		}

		return c.Next()
	}
}
