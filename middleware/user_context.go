package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContext extracts the identity headers set by the auth gateway and
// attaches them to the request. Routes behind it can rely on user_id being
// present.
func UserContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"err": true, "name": "PermissionError",
				"msg": "missing X-User-ID, request must come through the gateway with auth context",
			})
		}
		c.Locals("user_id", userID)
		c.Locals("is_admin", strings.EqualFold(c.Get("X-User-Admin"), "true"))
		return c.Next()
	}
}

// RequireAdmin gates management routes. Must run after UserContext.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if isAdmin, _ := c.Locals("is_admin").(bool); !isAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"err": true, "name": "PermissionError", "msg": "admin access required",
			})
		}
		return c.Next()
	}
}
