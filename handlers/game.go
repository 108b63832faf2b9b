// handlers/game.go
package handlers

import (
	"token-arena/middleware"
	"token-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGameRoutes(app *fiber.App, gameService *services.GameService, leaderboardService *services.LeaderboardService) {
	// 🔓 Public routes — no user context, but still require Gateway auth
	app.Get("/leaderboard", leaderboardService.Leaderboard)
	app.Get("/games/:id/results", gameService.GetFinalResults)

	// 🔐 Secured routes — require the authenticated nickname from the Gateway
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/games/join", gameService.JoinGame)
	secured.Post("/games/:id/tokens", gameService.SendTokens)
	secured.Get("/games/:id/status", gameService.GetGameStatus)
}
