// middleware/auth.go
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts the authenticated nickname set by the
// Gateway. The core trusts this identity and never re-verifies credentials;
// routes behind this middleware can read c.Locals("nickname") directly.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		nickname := c.Get("X-User-Nickname")
		if nickname == "" {
			log.Printf("❌ [USER_CTX] X-User-Nickname required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-Nickname — request must come through gateway with auth context",
			})
		}

		c.Locals("nickname", nickname)
		return c.Next()
	}
}
