package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/app/repository"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
)

// MergeTimeout bounds one locked read-modify-write of a session row
const MergeTimeout = 10 * time.Second

// Aggregator merges per-file outcomes into their batch session
type Aggregator struct {
	sessions     SessionStore
	notifier     Notifier
	mergeTimeout time.Duration
}

// NewAggregator creates an aggregator. notifier may be nil.
func NewAggregator(sessions SessionStore, notifier Notifier) *Aggregator {
	return &Aggregator{
		sessions:     sessions,
		notifier:     notifier,
		mergeTimeout: MergeTimeout,
	}
}

// ApplySuccess records extracted data at index. A session that vanished is an aggregation conflict.
func (a *Aggregator) ApplySuccess(ctx context.Context, sessionID uint, index int, data models.ExtractedData) (*models.BatchSession, error) {
	outcome, err := models.CompletedOutcome(data)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "extracted data failed validation", err)
	}

	s, err := a.merge(ctx, sessionID, index, outcome)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, apperr.AggregationConflict("batch session no longer exists", err)
	}
	return s, err
}

// ApplyFailure records a failed file at index. A session that vanished is skipped with a log line.
func (a *Aggregator) ApplyFailure(ctx context.Context, sessionID uint, index int, reason string) (*models.BatchSession, error) {
	s, err := a.merge(ctx, sessionID, index, models.FailedOutcome(reason))
	if errors.Is(err, repository.ErrSessionNotFound) {
		log.Warnf("[Aggregator] Session %d vanished before failure of index %d could be recorded", sessionID, index)
		return nil, nil
	}
	return s, err
}

func (a *Aggregator) merge(ctx context.Context, sessionID uint, index int, outcome models.FileOutcome) (*models.BatchSession, error) {
	// the job context may already be expired by a slow extraction
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.mergeTimeout)
	defer cancel()

	var before models.BatchStatus
	s, err := a.sessions.UpdateLocked(ctx, sessionID, func(s *models.BatchSession) (bool, error) {
		before = s.Status
		return s.ApplyOutcome(index, outcome)
	})
	if err != nil {
		if errors.Is(err, models.ErrFileIndexOutOfRange) {
			return nil, apperr.New(apperr.KindValidation, "file index out of range", err)
		}
		return nil, err
	}

	if before == models.BatchStatusProcessing && s.Status.IsTerminal() {
		log.Infof("[Aggregator] Session %s finished with status %s (%d completed, %d failed)",
			s.SessionID, s.Status, s.CountByStatus(models.FileStatusCompleted), s.CountByStatus(models.FileStatusFailed))
		if a.notifier != nil {
			if err := a.notifier.BatchFinished(ctx, s); err != nil {
				log.Warnf("[Aggregator] Notification for session %s failed: %v", s.SessionID, err)
			}
		}
	}
	return s, nil
}
