package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// HandleBillingWebhook applies a payment provider delivery. The raw body is what was signed.
func (a *API) HandleBillingWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	if err := a.deps.Payments.HandleWebhook(c.UserContext(), payload, c.Get("X-Signature")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"received": true})
}
