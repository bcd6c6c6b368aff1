package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/upload"
)

var refValidator = validator.New()

// Dispatcher accepts submissions, persists their placeholder rows and enqueues extraction jobs
type Dispatcher struct {
	sessions SessionStore
	receipts ReceiptStore
	queue    JobEnqueuer
	cache    ResultCache
	usage    UsageTracker
	opts     jobqueue.EnqueueOptions
}

func NewDispatcher(sessions SessionStore, receipts ReceiptStore, queue JobEnqueuer, cache ResultCache, usage UsageTracker) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		receipts: receipts,
		queue:    queue,
		cache:    cache,
		usage:    usage,
		opts:     jobqueue.DefaultEnqueueOptions(),
	}
}

// SubmitBatch creates one session with a pending record per file and enqueues one job per index.
// Jobs already enqueued are not withdrawn when a later enqueue fails.
func (d *Dispatcher) SubmitBatch(ctx context.Context, userID uint, refs []models.FileRef) (*models.BatchSession, error) {
	if len(refs) == 0 {
		return nil, apperr.Validation("at least one file is required")
	}
	if len(refs) > models.MaxBatchFiles {
		return nil, apperr.Validation(fmt.Sprintf("a batch accepts at most %d files", models.MaxBatchFiles),
			fmt.Sprintf("files: got %d", len(refs)))
	}
	if details := validateRefs(refs); len(details) > 0 {
		return nil, apperr.Validation("invalid file reference", details...)
	}
	if err := d.usage.CheckReceipts(ctx, userID, len(refs)); err != nil {
		return nil, err
	}

	session := models.NewBatchSession(userID, refs)
	if err := d.sessions.Create(ctx, session); err != nil {
		return nil, apperr.Downstream("failed to create batch session", err)
	}

	for i, f := range session.Files {
		payload := jobqueue.BatchExtractionPayload{
			BatchSessionID: session.ID,
			FileIndex:      i,
			UserID:         userID,
			FileURL:        f.URL,
			Filename:       f.Name,
		}
		if _, err := d.queue.EnqueueJob(ctx, jobqueue.JobTypeBatchExtraction, payload.ToMap(), d.opts); err != nil {
			log.Errorf("[Dispatcher] Enqueue failed for session %s index %d/%d: %v", session.SessionID, i, len(session.Files), err)
			return nil, apperr.Downstream("failed to enqueue extraction job", err)
		}
	}

	if err := d.usage.RecordReceipts(ctx, userID, len(refs)); err != nil {
		log.Errorf("[Dispatcher] Failed to record usage for user %d: %v", userID, err)
	}

	log.Infof("[Dispatcher] Session %s created with %d files for user %d", session.SessionID, len(session.Files), userID)
	return session, nil
}

// SubmitReceipt serves the single-file path. A cache hit completes the receipt immediately,
// a miss stores a pending receipt and enqueues exactly one job.
func (d *Dispatcher) SubmitReceipt(ctx context.Context, userID uint, ref models.FileRef) (*models.Receipt, error) {
	if details := validateRefs([]models.FileRef{ref}); len(details) > 0 {
		return nil, apperr.Validation("invalid file reference", details...)
	}
	if err := d.usage.CheckReceipts(ctx, userID, 1); err != nil {
		return nil, err
	}

	receipt := models.NewPendingReceipt(userID, ref)

	cached, hit, err := d.cache.Get(ctx, userID, receipt.FileURL)
	if err != nil {
		log.Warnf("[Dispatcher] Result cache lookup failed, treating as miss: %v", err)
		hit = false
	}

	if hit {
		receipt.Complete(*cached)
		receipt.AddFlag(models.FlagFromCache)
		if err := d.receipts.Create(ctx, receipt); err != nil {
			return nil, apperr.Downstream("failed to store receipt", err)
		}
	} else {
		if err := d.receipts.Create(ctx, receipt); err != nil {
			return nil, apperr.Downstream("failed to store receipt", err)
		}
		payload := jobqueue.ReceiptExtractionPayload{
			ReceiptID: receipt.ID,
			UserID:    userID,
			FileURL:   receipt.FileURL,
			Filename:  receipt.FileName,
		}
		if _, err := d.queue.EnqueueJob(ctx, jobqueue.JobTypeReceiptExtraction, payload.ToMap(), d.opts); err != nil {
			log.Errorf("[Dispatcher] Enqueue failed for receipt %d: %v", receipt.ID, err)
			return nil, apperr.Downstream("failed to enqueue extraction job", err)
		}
	}

	if err := d.usage.RecordReceipts(ctx, userID, 1); err != nil {
		log.Errorf("[Dispatcher] Failed to record usage for user %d: %v", userID, err)
	}
	return receipt, nil
}

func validateRefs(refs []models.FileRef) []string {
	var details []string
	for i, ref := range refs {
		ref.URL = strings.TrimSpace(ref.URL)
		ref.Name = strings.TrimSpace(ref.Name)
		if err := refValidator.Struct(ref); err != nil {
			if verrs, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range verrs {
					details = append(details, fmt.Sprintf("files[%d].%s: failed %s", i, strings.ToLower(fe.Field()), fe.Tag()))
				}
			} else {
				details = append(details, fmt.Sprintf("files[%d]: %v", i, err))
			}
			continue
		}
		if err := upload.ValidateReceiptName(ref.Name); err != nil {
			details = append(details, fmt.Sprintf("files[%d].name: %v", i, err))
		}
	}
	return details
}
