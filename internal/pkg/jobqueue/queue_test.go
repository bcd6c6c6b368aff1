package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(nil, Config{Workers: tt.workers})

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.Equal(t, 30*time.Second, queue.backoff)
			assert.Equal(t, 10*time.Minute, queue.stuckAfter)
			assert.NotNil(t, queue.stopCh)
			assert.False(t, queue.running)
		})
	}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "job:", JobKeyPrefix)
	assert.Equal(t, "job_queue", JobQueueKey)
	assert.Equal(t, "job_processing", JobProcessingKey)
	assert.Equal(t, "job_stats", JobStatsKey)

	assert.Equal(t, 2, DefaultMaxRetries)
	assert.Equal(t, 60*time.Second, DefaultJobTimeout)
	assert.Equal(t, 24*time.Hour, JobTTL)
}

func TestExecuteUnknownTypeIsPermanent(t *testing.T) {
	q := NewQueue(nil, Config{})
	err := q.Execute(context.Background(), &Job{Type: "nope"})
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestExecuteAppliesJobTimeout(t *testing.T) {
	q := NewQueue(nil, Config{})
	q.RegisterHandler(JobTypeReceiptExtraction, func(ctx context.Context, job *Job) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
		<-ctx.Done()
		return ctx.Err()
	})

	err := q.Execute(context.Background(), &Job{Type: JobTypeReceiptExtraction, TimeoutSeconds: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnqueueJobStoresPolicy(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, Config{})
	ctx := context.Background()

	p := BatchExtractionPayload{BatchSessionID: 1, FileIndex: 0, UserID: 2, FileURL: "https://x/a.jpg", Filename: "a.jpg"}
	job, err := q.EnqueueJob(ctx, JobTypeBatchExtraction, p.ToMap(), DefaultEnqueueOptions())
	require.NoError(t, err)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)
	assert.Equal(t, 2, stored.MaxRetries)
	assert.Equal(t, 60, stored.TimeoutSeconds)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[JobStatusPending])
}

func TestWorkerProcessesAndRemovesCompletedJob(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, Config{Workers: 1})
	ctx := context.Background()

	done := make(chan BatchExtractionPayload, 1)
	q.RegisterHandler(JobTypeBatchExtraction, func(ctx context.Context, job *Job) error {
		p, err := BatchExtractionPayloadFromMap(job.Payload)
		if err != nil {
			return Permanent(err)
		}
		done <- *p
		return nil
	})

	p := BatchExtractionPayload{BatchSessionID: 5, FileIndex: 1, UserID: 2, FileURL: "https://x/b.jpg", Filename: "b.jpg"}
	job, err := q.EnqueueJob(ctx, JobTypeBatchExtraction, p.ToMap(), DefaultEnqueueOptions())
	require.NoError(t, err)

	q.Start()
	defer q.Stop()

	select {
	case got := <-done:
		assert.Equal(t, p, got)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}

	assert.Eventually(t, func() bool {
		_, err := q.GetJob(ctx, job.ID)
		n, _ := q.GetProcessingSize(ctx)
		return err != nil && n == 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestFailedJobIsRetriedThenDropped(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, Config{Workers: 1, RetryBackoff: 10 * time.Millisecond})
	ctx := context.Background()

	var attempts int32
	q.RegisterHandler(JobTypeReceiptExtraction, func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("database unavailable")
	})

	job, err := q.EnqueueJob(ctx, JobTypeReceiptExtraction,
		ReceiptExtractionPayload{ReceiptID: 1, UserID: 1, FileURL: "https://x/c.jpg", Filename: "c.jpg"}.ToMap(),
		DefaultEnqueueOptions())
	require.NoError(t, err)

	q.Start()
	defer q.Stop()

	assert.Eventually(t, func() bool {
		stored, err := q.GetJob(ctx, job.ID)
		return err == nil && stored.Status == JobStatusFailed && stored.RetryCount == 3
	}, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, Config{Workers: 1, RetryBackoff: 10 * time.Millisecond})
	ctx := context.Background()

	var attempts int32
	q.RegisterHandler(JobTypeBatchExtraction, func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&attempts, 1)
		return Permanent(errors.New("file index out of range"))
	})

	job, err := q.EnqueueJob(ctx, JobTypeBatchExtraction,
		BatchExtractionPayload{BatchSessionID: 1, FileIndex: 99, FileURL: "https://x/d.jpg"}.ToMap(),
		DefaultEnqueueOptions())
	require.NoError(t, err)

	q.Start()
	defer q.Stop()

	assert.Eventually(t, func() bool {
		stored, err := q.GetJob(ctx, job.ID)
		return err == nil && stored.Status == JobStatusFailed
	}, 5*time.Second, 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestRecoverStuckJobs(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, Config{})
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobTypeBatchExtraction,
		BatchExtractionPayload{BatchSessionID: 1, FileURL: "https://x/e.jpg"}.ToMap(), DefaultEnqueueOptions())
	require.NoError(t, err)

	// simulate a worker that crashed mid-job an hour ago
	_, err = client.RPopLPush(ctx, JobQueueKey, JobProcessingKey).Result()
	require.NoError(t, err)
	job.MarkAsProcessing()
	old := time.Now().Add(-time.Hour)
	job.ProcessedAt = &old
	q.updateJob(ctx, job)

	n, err := q.RecoverStuckJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, _ := q.GetQueueSize(ctx)
	processing, _ := q.GetProcessingSize(ctx)
	assert.Equal(t, int64(1), pending)
	assert.Equal(t, int64(0), processing)
}
