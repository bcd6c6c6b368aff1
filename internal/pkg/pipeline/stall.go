package pipeline

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/jobqueue"
)

// StallReportTask logs sessions that stayed in processing longer than after.
// Such sessions have a file whose job exhausted its retries; nothing resumes them.
func StallReportTask(sessions SessionStore, after, interval time.Duration) jobqueue.PeriodicTask {
	return jobqueue.PeriodicTask{
		Name:     "stalled batch report",
		Interval: interval,
		Run: func(ctx context.Context) error {
			stale, err := sessions.ListStale(ctx, time.Now().Add(-after), 100)
			if err != nil {
				return err
			}
			for _, s := range stale {
				log.Warnf("[StallReport] Session %s (user %d) processing since %s with %d pending files",
					s.SessionID, s.UserID, s.UpdatedAt.Format(time.RFC3339), s.CountByStatus(models.FileStatusPending))
			}
			return nil
		},
	}
}
