package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReceiptFox/internal/pkg/usercontext"
)

// RequireAdmin ensures an authenticated admin caller; must run after APIKeyAuthMiddleware.
func RequireAdmin(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "API key required",
		})
	}
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin only",
		})
	}
	return c.Next()
}
