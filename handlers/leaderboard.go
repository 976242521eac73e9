// handlers/leaderboard.go
package handlers

import (
	"presale-referral-system/middleware"
	"presale-referral-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLeaderboardRoutes(app *fiber.App, leaderboardService *services.LeaderboardService, roundService *services.RoundService) {
	// 🔓 Public routes — *no wallet context*, but **still require Gateway auth**
	app.Get("/leaderboard", leaderboardService.TopNEndpoint)
	app.Get("/rounds/active", roundService.GetActiveRoundEndpoint)

	// 🔒 Admin-only routes
	admin := app.Group("/", middleware.WalletContextMiddleware()).Group("/admin", middleware.RequireRole("admin"))
	admin.Post("/rounds", roundService.CreateRoundEndpoint)
	admin.Get("/rounds", roundService.GetAllRoundsEndpoint)
	admin.Patch("/rounds/:id/status", roundService.UpdateRoundStatusEndpoint)
}
