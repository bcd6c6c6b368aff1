package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HandlePing is the liveness probe
func (a *API) HandlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"time":   a.now().UTC().Format(time.RFC3339),
	})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
