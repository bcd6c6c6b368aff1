package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/app/repository"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/cache"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/extraction"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/jobqueue"
)

// memSessions stores sessions as JSON and serializes UpdateLocked per row like SELECT ... FOR UPDATE
type memSessions struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint][]byte
	locks  map[uint]*sync.Mutex
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[uint][]byte{}, locks: map[uint]*sync.Mutex{}}
}

func (m *memSessions) Create(ctx context.Context, s *models.BatchSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	s.UpdatedAt = time.Now()
	b, _ := json.Marshal(s)
	m.rows[s.ID] = b
	m.locks[s.ID] = &sync.Mutex{}
	return nil
}

func (m *memSessions) load(id uint) (*models.BatchSession, *sync.Mutex, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return nil, nil, false
	}
	var s models.BatchSession
	_ = json.Unmarshal(b, &s)
	s.ID = id
	return &s, m.locks[id], true
}

func (m *memSessions) Get(id uint) *models.BatchSession {
	s, _, _ := m.load(id)
	return s
}

func (m *memSessions) Delete(id uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
}

func (m *memSessions) UpdateLocked(ctx context.Context, id uint, fn func(*models.BatchSession) (bool, error)) (*models.BatchSession, error) {
	_, lock, ok := m.load(id)
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	lock.Lock()
	defer lock.Unlock()

	s, _, ok := m.load(id)
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	changed, err := fn(s)
	if err != nil {
		return nil, err
	}
	if changed {
		// widen the window in which a lost update would show up
		time.Sleep(time.Millisecond)
		s.UpdatedAt = time.Now()
		b, _ := json.Marshal(s)
		m.mu.Lock()
		m.rows[id] = b
		m.mu.Unlock()
	}
	return s, nil
}

func (m *memSessions) ListStale(ctx context.Context, before time.Time, limit int) ([]models.BatchSession, error) {
	m.mu.Lock()
	ids := make([]uint, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var out []models.BatchSession
	for _, id := range ids {
		s, _, ok := m.load(id)
		if ok && s.Status == models.BatchStatusProcessing && s.UpdatedAt.Before(before) {
			out = append(out, *s)
		}
	}
	return out, nil
}

type memReceipts struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]models.Receipt
}

func newMemReceipts() *memReceipts {
	return &memReceipts{rows: map[uint]models.Receipt{}}
}

func (m *memReceipts) Create(ctx context.Context, r *models.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	m.rows[r.ID] = *r
	return nil
}

func (m *memReceipts) GetByID(ctx context.Context, id uint) (*models.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrReceiptNotFound
	}
	return &r, nil
}

func (m *memReceipts) Update(ctx context.Context, r *models.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ID] = *r
	return nil
}

type enqueued struct {
	Type    jobqueue.JobType
	Payload map[string]interface{}
	Opts    jobqueue.EnqueueOptions
}

type fakeQueue struct {
	mu       sync.Mutex
	jobs     []enqueued
	failFrom int // fail the n-th enqueue (1-based); 0 never fails
}

func (q *fakeQueue) EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}, opts jobqueue.EnqueueOptions) (*jobqueue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failFrom > 0 && len(q.jobs)+1 >= q.failFrom {
		return nil, errors.New("queue unavailable")
	}
	q.jobs = append(q.jobs, enqueued{Type: jobType, Payload: payload, Opts: opts})
	return &jobqueue.Job{Type: jobType, Payload: payload, MaxRetries: opts.MaxRetries}, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]models.ExtractedData
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]models.ExtractedData{}}
}

func (c *fakeCache) key(userID uint, url string) string {
	return cache.ResultKey(userID, url)
}

func (c *fakeCache) Get(ctx context.Context, userID uint, url string) (*models.ExtractedData, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	d, ok := c.entries[c.key(userID, url)]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

func (c *fakeCache) Put(ctx context.Context, userID uint, url string, data models.ExtractedData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(userID, url)] = data
	return nil
}

type fakeUsage struct {
	mu       sync.Mutex
	recorded int
	checkErr error
}

func (u *fakeUsage) CheckReceipts(ctx context.Context, userID uint, n int) error {
	return u.checkErr
}

func (u *fakeUsage) RecordReceipts(ctx context.Context, userID uint, n int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.recorded += n
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []models.BatchStatus
}

func (n *fakeNotifier) BatchFinished(ctx context.Context, s *models.BatchSession) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, s.Status)
	return nil
}

func (n *fakeNotifier) Calls() []models.BatchStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.BatchStatus(nil), n.calls...)
}

// scriptedExtractor returns results keyed by file URL
type scriptedExtractor struct {
	results map[string]*models.ExtractedData
	delay   time.Duration
}

func (e *scriptedExtractor) Extract(ctx context.Context, fileURL, filename string) (*models.ExtractedData, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, extraction.Fail(extraction.StageRequest, ctx.Err())
		}
	}
	d, ok := e.results[fileURL]
	if !ok || d == nil {
		return nil, extraction.Fail(extraction.StageSchema, errors.New("unreadable"))
	}
	cp := *d
	return &cp, nil
}

func sampleData(merchant, amount string) models.ExtractedData {
	return models.ExtractedData{
		MerchantName: merchant,
		Amount:       amount,
		Category:     "Meals",
		ReceiptDate:  "2026-10-01",
		Currency:     "EUR",
		Confidence:   0.92,
		DateSource:   "receipt",
	}
}

func refs(n int) []models.FileRef {
	out := make([]models.FileRef, n)
	for i := range out {
		out[i] = models.FileRef{URL: "https://files.example.com/r" + string(rune('a'+i)) + ".jpg", Name: "r" + string(rune('a'+i)) + ".jpg"}
	}
	return out
}
