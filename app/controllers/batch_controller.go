package controllers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/app/repository"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/export"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/usercontext"
)

type submitBatchRequest struct {
	Files []models.FileRef `json:"files"`
}

// HandleSubmitBatch creates a batch session and enqueues one extraction job per file
func (a *API) HandleSubmitBatch(c *fiber.Ctx) error {
	var req submitBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperr.Validation("invalid request body"))
	}

	session, err := a.deps.Submitter.SubmitBatch(c.UserContext(), usercontext.GetUserID(c), req.Files)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(session)
}

const batchesPerPage = 20

// HandleListBatches returns the caller's batch sessions, newest first
func (a *API) HandleListBatches(c *fiber.Ctx) error {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		return respondError(c, apperr.Validation("invalid page", "page: must be a positive integer"))
	}
	offset := (page - 1) * batchesPerPage

	sessions, err := a.deps.Sessions.ListByUser(c.UserContext(), usercontext.GetUserID(c), offset, batchesPerPage)
	if err != nil {
		return respondError(c, err)
	}
	if sessions == nil {
		sessions = []models.BatchSession{}
	}
	return c.JSON(fiber.Map{
		"batches": sessions,
		"page":    page,
		"perPage": batchesPerPage,
	})
}

// HandleGetBatch returns the current state of a batch session
func (a *API) HandleGetBatch(c *fiber.Ctx) error {
	session, err := a.deps.Sessions.GetBySessionID(c.UserContext(), usercontext.GetUserID(c), c.Params("sessionId"))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return respondError(c, apperr.NotFound("batch session not found"))
		}
		return respondError(c, err)
	}
	return c.JSON(session)
}

// HandleBatchCheckout starts the one-time payment that unlocks the batch export
func (a *API) HandleBatchCheckout(c *fiber.Ctx) error {
	checkout, err := a.deps.Payments.StartBatchCheckout(c.UserContext(), usercontext.GetUserID(c), c.Params("sessionId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"paymentId":   checkout.ID,
		"checkoutUrl": checkout.URL,
	})
}

// HandleBatchExport renders the completed files of a paid, terminal batch
func (a *API) HandleBatchExport(c *fiber.Ctx) error {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		return respondError(c, err)
	}
	file, err := a.deps.Exporter.ExportBatch(c.UserContext(), usercontext.GetUserID(c), c.Params("sessionId"), format)
	if err != nil {
		return respondError(c, err)
	}
	return sendExport(c, file)
}

func sendExport(c *fiber.Ctx, file *export.File) error {
	c.Set(fiber.HeaderContentType, file.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Set("X-Export-Rows", strconv.Itoa(file.Rows))
	return c.Status(fiber.StatusOK).Send(file.Body)
}
