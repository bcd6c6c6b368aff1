package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/jobqueue"
)

func batchJob(sessionID uint, index int, ref models.FileRef) *jobqueue.Job {
	p := jobqueue.BatchExtractionPayload{BatchSessionID: sessionID, FileIndex: index, UserID: 1, FileURL: ref.URL, Filename: ref.Name}
	return &jobqueue.Job{Type: jobqueue.JobTypeBatchExtraction, Payload: p.ToMap()}
}

func TestBatchWorkerEndToEnd(t *testing.T) {
	store := newMemSessions()
	queue := &fakeQueue{}
	d := NewDispatcher(store, newMemReceipts(), queue, newFakeCache(), &fakeUsage{})

	files := refs(2)
	data := sampleData("A", "10.00")
	extractor := &scriptedExtractor{results: map[string]*models.ExtractedData{files[0].URL: &data}}
	worker := NewBatchWorker(extractor, NewAggregator(store, nil))

	s, err := d.SubmitBatch(context.Background(), 1, files)
	require.NoError(t, err)
	require.Len(t, queue.jobs, 2)

	for _, j := range queue.jobs {
		job := &jobqueue.Job{Type: j.Type, Payload: j.Payload}
		require.NoError(t, worker.Handle(context.Background(), job))
	}

	final := store.Get(s.ID)
	assert.Equal(t, models.BatchStatusFailed, final.Status)
	assert.Equal(t, models.FileStatusCompleted, final.Files[0].Status)
	assert.Equal(t, "A", final.Files[0].ExtractedData.MerchantName)
	assert.Equal(t, models.FileStatusFailed, final.Files[1].Status)
	assert.Equal(t, "receipt could not be read", final.Files[1].Error)
}

func TestBatchWorkerConcurrentJobs(t *testing.T) {
	store := newMemSessions()
	files := refs(models.MaxBatchFiles)
	results := map[string]*models.ExtractedData{}
	for _, f := range files {
		d := sampleData(f.Name, "3.00")
		results[f.URL] = &d
	}
	worker := NewBatchWorker(&scriptedExtractor{results: results, delay: 5 * time.Millisecond}, NewAggregator(store, nil))
	s := models.NewBatchSession(1, files)
	require.NoError(t, store.Create(context.Background(), s))

	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f models.FileRef) {
			defer wg.Done()
			assert.NoError(t, worker.Handle(context.Background(), batchJob(s.ID, i, f)))
		}(i, f)
	}
	wg.Wait()

	final := store.Get(s.ID)
	assert.Equal(t, models.BatchStatusCompleted, final.Status)
	for i, f := range final.Files {
		assert.Equal(t, files[i].Name, f.ExtractedData.MerchantName)
	}
}

func TestBatchWorkerTimeoutStillRecordsFailure(t *testing.T) {
	store := newMemSessions()
	files := refs(1)
	d := sampleData("A", "1.00")
	worker := NewBatchWorker(&scriptedExtractor{results: map[string]*models.ExtractedData{files[0].URL: &d}, delay: time.Second}, NewAggregator(store, nil))
	s := models.NewBatchSession(1, files)
	require.NoError(t, store.Create(context.Background(), s))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, worker.Handle(ctx, batchJob(s.ID, 0, files[0])))

	final := store.Get(s.ID)
	assert.Equal(t, models.BatchStatusFailed, final.Status)
	assert.Equal(t, "extraction timed out", final.Files[0].Error)
}

func TestBatchWorkerPermanentErrors(t *testing.T) {
	store := newMemSessions()
	worker := NewBatchWorker(&scriptedExtractor{}, NewAggregator(store, nil))

	err := worker.Handle(context.Background(), &jobqueue.Job{Payload: map[string]interface{}{"file_index": 0}})
	assert.ErrorIs(t, err, jobqueue.ErrPermanent)

	s := newSession(t, store, 1)
	err = worker.Handle(context.Background(), batchJob(s.ID, 5, models.FileRef{URL: "https://x.example.com/a.jpg", Name: "a.jpg"}))
	assert.ErrorIs(t, err, jobqueue.ErrPermanent)

	// a vanished session is skipped on the failure path
	err = worker.Handle(context.Background(), batchJob(999, 0, models.FileRef{URL: "https://x.example.com/a.jpg", Name: "a.jpg"}))
	assert.NoError(t, err)
}

func TestBatchWorkerSuccessOnVanishedSessionIsPermanent(t *testing.T) {
	ref := models.FileRef{URL: "https://x.example.com/a.jpg", Name: "a.jpg"}
	d := sampleData("A", "1.00")
	worker := NewBatchWorker(&scriptedExtractor{results: map[string]*models.ExtractedData{ref.URL: &d}}, NewAggregator(newMemSessions(), nil))

	err := worker.Handle(context.Background(), batchJob(999, 0, ref))
	assert.ErrorIs(t, err, jobqueue.ErrPermanent)
}

func TestReceiptWorker(t *testing.T) {
	ctx := context.Background()
	receipts := newMemReceipts()
	cache := newFakeCache()
	ok := models.FileRef{URL: "https://x.example.com/ok.jpg", Name: "ok.jpg"}
	bad := models.FileRef{URL: "https://x.example.com/bad.jpg", Name: "bad.jpg"}
	d := sampleData("Kiosk", "2.50")
	d.Confidence = 0.3
	worker := NewReceiptWorker(&scriptedExtractor{results: map[string]*models.ExtractedData{ok.URL: &d}}, receipts, cache)

	r1 := models.NewPendingReceipt(5, ok)
	r2 := models.NewPendingReceipt(5, bad)
	require.NoError(t, receipts.Create(ctx, r1))
	require.NoError(t, receipts.Create(ctx, r2))

	job := func(r *models.Receipt) *jobqueue.Job {
		p := jobqueue.ReceiptExtractionPayload{ReceiptID: r.ID, UserID: 5, FileURL: r.FileURL, Filename: r.FileName}
		return &jobqueue.Job{Type: jobqueue.JobTypeReceiptExtraction, Payload: p.ToMap()}
	}
	require.NoError(t, worker.Handle(ctx, job(r1)))
	require.NoError(t, worker.Handle(ctx, job(r2)))

	got1, _ := receipts.GetByID(ctx, r1.ID)
	assert.Equal(t, models.ReceiptStatusCompleted, got1.Status)
	assert.Equal(t, "Kiosk", got1.Merchant)
	assert.True(t, got1.HasFlag(models.FlagLowConfidence))

	cached, hit, err := cache.Get(ctx, 5, ok.URL)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "Kiosk", cached.MerchantName)

	got2, _ := receipts.GetByID(ctx, r2.ID)
	assert.Equal(t, models.ReceiptStatusPending, got2.Status)
	assert.True(t, got2.HasFlag(models.FlagExtractionFailed))
	_, hit, _ = cache.Get(ctx, 5, bad.URL)
	assert.False(t, hit)
}

func TestRegisterWiresBothJobTypes(t *testing.T) {
	q := jobqueue.NewQueue(nil, jobqueue.Config{})
	Register(q, NewBatchWorker(&scriptedExtractor{}, NewAggregator(newMemSessions(), nil)),
		NewReceiptWorker(&scriptedExtractor{}, newMemReceipts(), newFakeCache()))

	// unknown types are permanent; registered ones reach the handler and fail on the empty payload
	err := q.Execute(context.Background(), &jobqueue.Job{Type: jobqueue.JobTypeBatchExtraction, Payload: map[string]interface{}{}})
	assert.ErrorIs(t, err, jobqueue.ErrPermanent)
	assert.Contains(t, err.Error(), "batch_session_id")
}

func TestStallReportTask(t *testing.T) {
	store := newMemSessions()
	newSession(t, store, 2)
	task := StallReportTask(store, 0, time.Minute)
	assert.Equal(t, time.Minute, task.Interval)
	assert.NoError(t, task.Run(context.Background()))
}
