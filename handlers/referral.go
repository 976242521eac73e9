// handlers/referral.go
package handlers

import (
	"presale-referral-system/middleware"
	"presale-referral-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupReferralRoutes(app *fiber.App, referralService *services.ReferralService, notifier *services.Notifier) {
	// 🔐 Authenticated routes — require wallet context from the Gateway
	secured := app.Group("/", middleware.WalletContextMiddleware())

	secured.Post("/referral/bind", referralService.BindEndpoint)
	secured.Get("/referral/stats", referralService.StatsEndpoint)
	secured.Get("/player", referralService.MeEndpoint)

	// SSE stream — wallet context comes from query params (EventSource cannot set headers)
	app.Get("/player/rewards/stream", middleware.SSEAuthMiddleware(), notifier.StreamNotificationsSSE)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin", middleware.RequireRole("admin"))
	admin.Get("/players/:code", referralService.GetPlayerByCodeEndpoint)
}
