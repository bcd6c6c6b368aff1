package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/app/repository"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/export"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/usercontext"
)

// HandleSubmitReceipt runs the single-file path: 201 on a cache hit, 202 while extraction runs
func (a *API) HandleSubmitReceipt(c *fiber.Ctx) error {
	var ref models.FileRef
	if err := c.BodyParser(&ref); err != nil {
		return respondError(c, apperr.Validation("invalid request body"))
	}

	receipt, err := a.deps.Submitter.SubmitReceipt(c.UserContext(), usercontext.GetUserID(c), ref)
	if err != nil {
		return respondError(c, err)
	}

	status := fiber.StatusAccepted
	if receipt.Status == models.ReceiptStatusCompleted {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(receiptResponse(receipt))
}

func (a *API) HandleGetReceipt(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return respondError(c, apperr.Validation("invalid receipt id"))
	}
	receipt, err := a.deps.Receipts.GetByIDForUser(c.UserContext(), usercontext.GetUserID(c), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrReceiptNotFound) {
			return respondError(c, apperr.NotFound("receipt not found"))
		}
		return respondError(c, err)
	}
	return c.JSON(receiptResponse(receipt))
}

// HandleReceiptsExport exports all completed receipts of the caller, optionally bounded by from/to
func (a *API) HandleReceiptsExport(c *fiber.Ctx) error {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		return respondError(c, err)
	}
	filter, err := parseDateFilter(c.Query("from"), c.Query("to"))
	if err != nil {
		return respondError(c, err)
	}
	file, err := a.deps.Exporter.ExportReceipts(c.UserContext(), usercontext.GetUserID(c), format, filter)
	if err != nil {
		return respondError(c, err)
	}
	return sendExport(c, file)
}

func parseDateFilter(from, to string) (export.Filter, error) {
	var f export.Filter
	var details []string
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			details = append(details, "from: must be YYYY-MM-DD")
		} else {
			f.From = &t
		}
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			details = append(details, "to: must be YYYY-MM-DD")
		} else {
			f.To = &t
		}
	}
	if len(details) == 0 && f.From != nil && f.To != nil && f.To.Before(*f.From) {
		details = append(details, "to: must not be before from")
	}
	if len(details) > 0 {
		return export.Filter{}, apperr.Validation("invalid date range", details...)
	}
	return f, nil
}

func receiptResponse(r *models.Receipt) fiber.Map {
	return fiber.Map{
		"id":         r.ID,
		"status":     r.Status,
		"merchant":   r.Merchant,
		"amount":     r.Amount,
		"category":   r.Category,
		"date":       r.ReceiptDate,
		"currency":   r.Currency,
		"confidence": r.Confidence,
		"dateSource": r.DateSource,
		"note":       r.Note,
		"fileUrl":    r.FileURL,
		"fileName":   r.FileName,
		"flags":      r.FlagList(),
		"createdAt":  r.CreatedAt.UTC().Format(time.RFC3339),
	}
}
