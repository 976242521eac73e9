// middleware/wallet.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// WalletContextMiddleware extracts the connected wallet identity set by the
// Gateway after the wallet-connect handshake. Secured routes require it; the
// core never trusts a wallet address from the request body.
func WalletContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		walletAddress := strings.TrimSpace(c.Get("X-Wallet-Address"))
		rolesStr := c.Get("X-User-Roles")

		if walletAddress == "" {
			log.Printf("❌ [WALLET_CTX] X-Wallet-Address required but missing on route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Wallet-Address — request must come through gateway with wallet context",
			})
		}

		var roles []string
		if rolesStr != "" {
			for _, r := range strings.Split(rolesStr, ",") {
				r = strings.TrimSpace(r)
				if r != "" {
					roles = append(roles, r)
				}
			}
		}

		// Attach to ctx for handlers
		c.Locals("wallet_address", walletAddress)
		c.Locals("user_roles", roles)

		return c.Next()
	}
}

// RequireRole gates a route group on a gateway-asserted role. Must run after
// WalletContextMiddleware, which parses X-User-Roles into the context.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		for _, r := range roles {
			if strings.EqualFold(r, role) {
				return c.Next()
			}
		}
		log.Printf("🚫 [WALLET_CTX] Role %q required but missing on route: %s", role, c.Path())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient role for this route",
		})
	}
}
