// handlers/purchase.go
package handlers

import (
	"presale-referral-system/middleware"
	"presale-referral-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPurchaseRoutes(app *fiber.App, purchaseService *services.PurchaseService) {
	// 🔐 Authenticated routes — require wallet context from the Gateway
	secured := app.Group("/", middleware.WalletContextMiddleware())

	secured.Post("/purchases", purchaseService.BuyEndpoint)
	secured.Get("/purchases", purchaseService.ListEndpoint)
	secured.Post("/player/spend", purchaseService.SpendEndpoint)

	// 🔒 Admin-only routes (manual settlement reconciliation)
	admin := secured.Group("/admin", middleware.RequireRole("admin"))
	admin.Post("/purchases/:id/settle", purchaseService.SettleEndpoint)
}
