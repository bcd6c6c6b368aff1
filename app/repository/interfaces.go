package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ReceiptFox/app/models"
)

var (
	ErrSessionNotFound = errors.New("batch session not found")
	ErrReceiptNotFound = errors.New("receipt not found")
)

// UsageCounter names a monthly usage column on user_settings
type UsageCounter string

const (
	UsageReceipts UsageCounter = "receipts_used"
	UsageExports  UsageCounter = "exports_used"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, *models.UserSettings, error)
	GetSettings(ctx context.Context, userID uint) (*models.UserSettings, error)
	SaveSettings(ctx context.Context, settings *models.UserSettings) error
	TouchAPIKey(ctx context.Context, settingsID uint, at time.Time) error
	// IncrementUsage adds n to the counter for the current month, resetting stale periods first
	IncrementUsage(ctx context.Context, userID uint, counter UsageCounter, n int) (*models.UserSettings, error)
}

// BatchSessionRepository persists batch sessions. Files and Status are only written through UpdateLocked.
type BatchSessionRepository interface {
	Create(ctx context.Context, session *models.BatchSession) error
	GetByID(ctx context.Context, id uint) (*models.BatchSession, error)
	// GetBySessionID resolves the client-facing id and filters by owner
	GetBySessionID(ctx context.Context, userID uint, sessionID string) (*models.BatchSession, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*models.BatchSession, error)
	ListByUser(ctx context.Context, userID uint, offset, limit int) ([]models.BatchSession, error)
	// ListStale returns processing sessions that have not changed since before
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.BatchSession, error)
	// UpdateLocked runs fn on a row read under SELECT ... FOR UPDATE and persists files and status
	// in the same transaction when fn reports a change.
	UpdateLocked(ctx context.Context, id uint, fn func(session *models.BatchSession) (bool, error)) (*models.BatchSession, error)
	SetPaymentID(ctx context.Context, id uint, paymentID string) error
	MarkPaid(ctx context.Context, id uint, paymentID string, paidAt time.Time) error
}

// ReceiptRepository persists single-file receipts
type ReceiptRepository interface {
	Create(ctx context.Context, receipt *models.Receipt) error
	GetByID(ctx context.Context, id uint) (*models.Receipt, error)
	GetByIDForUser(ctx context.Context, userID, id uint) (*models.Receipt, error)
	Update(ctx context.Context, receipt *models.Receipt) error
	ListCompletedByUser(ctx context.Context, userID uint, from, to *time.Time) ([]models.Receipt, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	BatchSession BatchSessionRepository
	Receipt      ReceiptRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		BatchSession: NewBatchSessionRepository(db),
		Receipt:      NewReceiptRepository(db),
	}
}
