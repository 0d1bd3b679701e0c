package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/benbeisheim/unionchess-backend/internal/middleware"
)

// RegisterRoutes mounts the REST and websocket endpoints on app. origins
// limits websocket handshakes; an empty list allows any origin.
func RegisterRoutes(app *fiber.App, mc *MatchController, wsc *WebSocketController, origins []string) {
	// Set up WebSocket routes
	app.Use("/ws/*", middleware.EnsurePartyID())
	app.Get("/ws/match/:key", middleware.WebSocketUpgrade(), websocket.New(wsc.HandleConnection, websocket.Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Origins:         origins,
	}))

	// Set up REST routes
	api := app.Group("/api")
	api.Post("/position/legal", mc.LegalActions)

	matchRoutes := api.Group("/match", middleware.EnsurePartyID())
	matchRoutes.Post("/", mc.CreateMatch)
	matchRoutes.Get("/:key", mc.GetMatch)
	matchRoutes.Get("/:key/compact", mc.GetCompactMatch)
	matchRoutes.Post("/:key/action", mc.SubmitAction)
	matchRoutes.Post("/:key/rollback", mc.Rollback)
	matchRoutes.Post("/:key/claim/:color", mc.ClaimSide)
	matchRoutes.Post("/:key/release/:color", mc.ReleaseSide)
	matchRoutes.Post("/:key/delegate/:color", mc.DelegateFrontendAI)
}
