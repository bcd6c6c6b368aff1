package controllers

import (
	"context"
	"time"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/export"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/objectstore"
)

// Submitter is implemented by pipeline.Dispatcher
type Submitter interface {
	SubmitBatch(ctx context.Context, userID uint, refs []models.FileRef) (*models.BatchSession, error)
	SubmitReceipt(ctx context.Context, userID uint, ref models.FileRef) (*models.Receipt, error)
}

type SessionReader interface {
	GetBySessionID(ctx context.Context, userID uint, sessionID string) (*models.BatchSession, error)
	ListByUser(ctx context.Context, userID uint, offset, limit int) ([]models.BatchSession, error)
}

type ReceiptReader interface {
	GetByIDForUser(ctx context.Context, userID, id uint) (*models.Receipt, error)
}

// Exporter is implemented by export.Service
type Exporter interface {
	ExportBatch(ctx context.Context, userID uint, sessionID string, format export.Format) (*export.File, error)
	ExportReceipts(ctx context.Context, userID uint, format export.Format, filter export.Filter) (*export.File, error)
}

// Payments is implemented by billing.Service
type Payments interface {
	StartBatchCheckout(ctx context.Context, userID uint, sessionID string) (*billing.Checkout, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// UploadSigner is implemented by objectstore.Client
type UploadSigner interface {
	PresignPut(ctx context.Context, userID uint, fileName, contentType string) (*objectstore.PresignedUpload, error)
}

// TaskRunner executes one job inline, used by the external queue callback
type TaskRunner interface {
	Execute(ctx context.Context, job *jobqueue.Job) error
}

// QueueInspector exposes queue sizes and counters
type QueueInspector interface {
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
}

// Deps are the collaborators of the HTTP API. Uploads may be nil when object storage is disabled.
type Deps struct {
	Submitter  Submitter
	Sessions   SessionReader
	Receipts   ReceiptReader
	Exporter   Exporter
	Payments   Payments
	Uploads    UploadSigner
	Tasks      TaskRunner
	Queue      QueueInspector
	TaskSecret string
}

// API holds the handlers of /api/v1
type API struct {
	deps Deps
	now  func() time.Time
}

func NewAPI(deps Deps) *API {
	return &API{deps: deps, now: time.Now}
}
