package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
)

// respondError maps an error kind to its status code. Causes are logged, never returned.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal_server_error",
			"message": "Internal server error",
		})
	}

	status := fiber.StatusInternalServerError
	switch appErr.Kind {
	case apperr.KindValidation:
		status = fiber.StatusBadRequest
	case apperr.KindAuthorization:
		status = fiber.StatusUnauthorized
	case apperr.KindForbidden:
		status = fiber.StatusForbidden
	case apperr.KindNotFound:
		status = fiber.StatusNotFound
	case apperr.KindPaymentRequired, apperr.KindQuotaExceeded:
		status = fiber.StatusPaymentRequired
	case apperr.KindNotImplemented:
		status = fiber.StatusNotImplemented
	}

	body := fiber.Map{
		"error":   string(appErr.Kind),
		"message": appErr.Message,
	}
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		if status == fiber.StatusInternalServerError {
			body["message"] = "Internal server error"
		}
	}
	if appErr.Kind == apperr.KindValidation && len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	return c.Status(status).JSON(body)
}
