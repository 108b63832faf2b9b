// handlers/arena.go
package handlers

import (
	"token-arena/middleware"
	"token-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupArenaRoutes(app *fiber.App, arenaService *services.ArenaService, authClient *services.AuthServiceClient) {
	// Arena bootstrap goes through the normal gateway user context.
	app.Get("/games/:id/arena", middleware.UserContextMiddleware(), arenaService.GetArenaInfo)

	// The live stream authenticates via query params (EventSource cannot set
	// headers), validated against the auth service.
	app.Get("/games/:id/arena/stream", middleware.SSEAuthMiddleware(authClient), arenaService.StreamArena)
}
