package pipeline

import (
	"context"
	"time"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/jobqueue"
)

// JobEnqueuer publishes extraction jobs
type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}, opts jobqueue.EnqueueOptions) (*jobqueue.Job, error)
}

// ResultCache is the single-file result cache
type ResultCache interface {
	Get(ctx context.Context, userID uint, fileURL string) (*models.ExtractedData, bool, error)
	Put(ctx context.Context, userID uint, fileURL string, data models.ExtractedData) error
}

// UsageTracker enforces and records the monthly receipt quota
type UsageTracker interface {
	CheckReceipts(ctx context.Context, userID uint, n int) error
	RecordReceipts(ctx context.Context, userID uint, n int) error
}

// Notifier is told once when a batch reaches a terminal status
type Notifier interface {
	BatchFinished(ctx context.Context, session *models.BatchSession) error
}

// SessionStore is the batch session persistence used by the pipeline
type SessionStore interface {
	Create(ctx context.Context, session *models.BatchSession) error
	UpdateLocked(ctx context.Context, id uint, fn func(session *models.BatchSession) (bool, error)) (*models.BatchSession, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.BatchSession, error)
}

// ReceiptStore is the receipt persistence used by the pipeline
type ReceiptStore interface {
	Create(ctx context.Context, receipt *models.Receipt) error
	GetByID(ctx context.Context, id uint) (*models.Receipt, error)
	Update(ctx context.Context, receipt *models.Receipt) error
}
