package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/app/repository"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/entitlements"
)

// Store is the subset of the user repository the tracker needs
type Store interface {
	GetSettings(ctx context.Context, userID uint) (*models.UserSettings, error)
	IncrementUsage(ctx context.Context, userID uint, counter repository.UsageCounter, n int) (*models.UserSettings, error)
}

// Tracker enforces plan quotas and records monthly usage
type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// CheckReceipts fails with a quota error when n more receipts would exceed the plan
func (t *Tracker) CheckReceipts(ctx context.Context, userID uint, n int) error {
	us, err := t.current(ctx, userID)
	if err != nil {
		return err
	}
	limit := entitlements.MonthlyReceipts(entitlements.ParsePlan(us.Plan))
	if !entitlements.Within(limit, us.ReceiptsUsed, n) {
		return apperr.QuotaExceeded(fmt.Sprintf("monthly receipt limit of %d reached", limit))
	}
	return nil
}

// CheckExport fails with a quota error when the plan has no exports left this month
func (t *Tracker) CheckExport(ctx context.Context, userID uint) error {
	us, err := t.current(ctx, userID)
	if err != nil {
		return err
	}
	limit := entitlements.MonthlyExports(entitlements.ParsePlan(us.Plan))
	if !entitlements.Within(limit, us.ExportsUsed, 1) {
		return apperr.QuotaExceeded(fmt.Sprintf("monthly export limit of %d reached", limit))
	}
	return nil
}

// Plan returns the caller's plan
func (t *Tracker) Plan(ctx context.Context, userID uint) (entitlements.Plan, error) {
	us, err := t.current(ctx, userID)
	if err != nil {
		return entitlements.PlanFree, err
	}
	return entitlements.ParsePlan(us.Plan), nil
}

func (t *Tracker) RecordReceipts(ctx context.Context, userID uint, n int) error {
	if _, err := t.store.IncrementUsage(ctx, userID, repository.UsageReceipts, n); err != nil {
		return apperr.Downstream("failed to record usage", err)
	}
	return nil
}

func (t *Tracker) RecordExport(ctx context.Context, userID uint) error {
	if _, err := t.store.IncrementUsage(ctx, userID, repository.UsageExports, 1); err != nil {
		return apperr.Downstream("failed to record usage", err)
	}
	return nil
}

// current returns the settings with counters of a past month treated as zero
func (t *Tracker) current(ctx context.Context, userID uint) (*models.UserSettings, error) {
	us, err := t.store.GetSettings(ctx, userID)
	if err != nil {
		return nil, apperr.Downstream("failed to load user settings", err)
	}
	cp := *us
	cp.RollUsagePeriod(t.now())
	return &cp, nil
}
