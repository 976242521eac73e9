// middleware/sse_auth.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SSEAuthMiddleware validates `token` and `wallet` from query params.
// Browsers cannot set headers on EventSource connections, so the Gateway
// proxies the service token and wallet context through the query string.
//
// Usage:
//
//	app.Get("/player/rewards/stream", middleware.SSEAuthMiddleware(), notifier.StreamNotificationsSSE)
func SSEAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("PRESALE_SERVICE_TOKEN")

	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		walletAddress := strings.TrimSpace(c.Query("wallet"))

		if token == "" || walletAddress == "" {
			log.Printf("[SSEAuth] ❌ Missing query params on %s (token len=%d, wallet='%s')", c.Path(), len(token), walletAddress)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or wallet in query",
			})
		}

		if token != expectedToken {
			log.Printf("[SSEAuth] ❌ Invalid token for wallet %s", walletAddress)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals("wallet_address", walletAddress)
		return c.Next()
	}
}
