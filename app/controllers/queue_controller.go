package controllers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/security"
)

// HandleInternalTask runs one job delivered by an external queue. A 5xx tells the caller to retry,
// permanently failed jobs are acknowledged so they are not redelivered.
func (a *API) HandleInternalTask(c *fiber.Ctx) error {
	jobType, err := jobqueue.ParseJobType(c.Params("type"))
	if err != nil {
		return respondError(c, apperr.NotFound("unknown task type"))
	}

	body := c.Body()
	if _, err := security.VerifyTaskToken(c.Get("X-Task-Signature"), string(jobType), body, a.deps.TaskSecret); err != nil {
		log.Warnf("[Tasks] Rejected %s callback: %v", jobType, err)
		return respondError(c, apperr.Unauthorized("invalid task signature"))
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return respondError(c, apperr.Validation("invalid task payload"))
	}

	opts := jobqueue.DefaultEnqueueOptions()
	now := a.now()
	job := &jobqueue.Job{
		ID:             uuid.New().String(),
		Type:           jobType,
		Status:         jobqueue.JobStatusProcessing,
		Payload:        payload,
		CreatedAt:      now,
		UpdatedAt:      now,
		MaxRetries:     opts.MaxRetries,
		TimeoutSeconds: int(opts.Timeout / time.Second),
	}

	if err := a.deps.Tasks.Execute(c.UserContext(), job); err != nil {
		if errors.Is(err, jobqueue.ErrPermanent) {
			log.Warnf("[Tasks] %s dropped: %v", jobType, err)
			return c.JSON(fiber.Map{"status": string(jobqueue.JobStatusFailed)})
		}
		return respondError(c, apperr.Downstream("task failed", err))
	}
	return c.JSON(fiber.Map{"status": string(jobqueue.JobStatusCompleted)})
}

// HandleQueueStats reports queue sizes and the per-status counters
func (a *API) HandleQueueStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	pending, err := a.deps.Queue.GetQueueSize(ctx)
	if err != nil {
		return respondError(c, apperr.Downstream("queue unavailable", err))
	}
	processing, err := a.deps.Queue.GetProcessingSize(ctx)
	if err != nil {
		return respondError(c, apperr.Downstream("queue unavailable", err))
	}
	stats, err := a.deps.Queue.GetJobStats(ctx)
	if err != nil {
		return respondError(c, apperr.Downstream("queue unavailable", err))
	}

	counters := make(fiber.Map, len(stats))
	for status, n := range stats {
		counters[string(status)] = n
	}
	return c.JSON(fiber.Map{
		"pending":    pending,
		"processing": processing,
		"counters":   counters,
	})
}
