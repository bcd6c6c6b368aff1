package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/app/repository"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
)

const testSecret = "whsec_test"

type memSessions struct {
	mu   sync.Mutex
	rows map[uint]*models.BatchSession
}

func newMemSessions(rows ...*models.BatchSession) *memSessions {
	m := &memSessions{rows: map[uint]*models.BatchSession{}}
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return m
}

func (m *memSessions) GetBySessionID(_ context.Context, userID uint, sessionID string) (*models.BatchSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID && r.SessionID == sessionID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (m *memSessions) GetByPaymentID(_ context.Context, paymentID string) (*models.BatchSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if paymentID != "" && r.PaymentID == paymentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (m *memSessions) SetPaymentID(_ context.Context, id uint, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	r.PaymentID = paymentID
	return nil
}

func (m *memSessions) MarkPaid(_ context.Context, id uint, paymentID string, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if r.PaidAt == nil {
		r.PaymentID = paymentID
		r.PaidAt = &paidAt
	}
	return nil
}

type memEvents struct {
	mu     sync.Mutex
	nextID uint
	rows   map[string]*models.BillingWebhookEvent
}

func newMemEvents() *memEvents {
	return &memEvents{rows: map[string]*models.BillingWebhookEvent{}}
}

func (m *memEvents) CreateWebhookEventIfNotExists(_ context.Context, e *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rows[e.ProviderEventID]; ok {
		cp := *existing
		return false, &cp, nil
	}
	m.nextID++
	e.ID = m.nextID
	cp := *e
	m.rows[e.ProviderEventID] = &cp
	return true, e, nil
}

func (m *memEvents) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.rows {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
		}
	}
	return nil
}

type stubProvider struct {
	calls    int
	checkout *Checkout
	err      error
}

func (p *stubProvider) CreateCheckout(_ context.Context, _ CheckoutRequest) (*Checkout, error) {
	p.calls++
	return p.checkout, p.err
}

func testSession() *models.BatchSession {
	return &models.BatchSession{ID: 7, SessionID: "sess-7", UserID: 3, Status: models.BatchStatusCompleted}
}

func signedEvent(t *testing.T, e WebhookEvent) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(e)
	require.NoError(t, err)
	return body, SignWebhookPayload(body, testSecret)
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sig := SignWebhookPayload(body, testSecret)

	assert.True(t, VerifyWebhookSignature(body, sig, testSecret))
	assert.True(t, VerifyWebhookSignature(body, "sha256="+sig, testSecret))
	assert.False(t, VerifyWebhookSignature(body, sig, "other"))
	assert.False(t, VerifyWebhookSignature([]byte(`{"id":"evt_2"}`), sig, testSecret))
	assert.False(t, VerifyWebhookSignature(body, "not-hex", testSecret))
	assert.False(t, VerifyWebhookSignature(body, sig, ""))
}

func TestStartBatchCheckout(t *testing.T) {
	sessions := newMemSessions(testSession())
	provider := &stubProvider{checkout: &Checkout{ID: "pay_1", URL: "https://pay.example/c/1"}}
	svc := NewService(Config{PriceCents: 499, Currency: "EUR"}, provider, sessions, newMemEvents())

	checkout, err := svc.StartBatchCheckout(context.Background(), 3, "sess-7")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/c/1", checkout.URL)
	assert.Equal(t, "pay_1", sessions.rows[7].PaymentID)
}

func TestStartBatchCheckoutErrors(t *testing.T) {
	t.Run("foreign session", func(t *testing.T) {
		svc := NewService(Config{}, &stubProvider{}, newMemSessions(testSession()), newMemEvents())
		_, err := svc.StartBatchCheckout(context.Background(), 99, "sess-7")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("already paid", func(t *testing.T) {
		s := testSession()
		paid := time.Now()
		s.PaidAt = &paid
		provider := &stubProvider{}
		svc := NewService(Config{}, provider, newMemSessions(s), newMemEvents())
		_, err := svc.StartBatchCheckout(context.Background(), 3, "sess-7")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Zero(t, provider.calls)
	})

	t.Run("provider down", func(t *testing.T) {
		provider := &stubProvider{err: assert.AnError}
		svc := NewService(Config{}, provider, newMemSessions(testSession()), newMemEvents())
		_, err := svc.StartBatchCheckout(context.Background(), 3, "sess-7")
		assert.Equal(t, apperr.KindDownstream, apperr.KindOf(err))
	})
}

func TestHandleWebhookMarksSessionPaid(t *testing.T) {
	s := testSession()
	s.PaymentID = "pay_1"
	sessions := newMemSessions(s)
	events := newMemEvents()
	svc := NewService(Config{WebhookSecret: testSecret}, &stubProvider{}, sessions, events)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body, sig := signedEvent(t, WebhookEvent{ID: "evt_1", Type: EventCheckoutCompleted, PaymentID: "pay_1", CreatedAt: at})

	require.NoError(t, svc.HandleWebhook(context.Background(), body, sig))
	require.NotNil(t, sessions.rows[7].PaidAt)
	assert.Equal(t, at, *sessions.rows[7].PaidAt)
	assert.True(t, events.rows["evt_1"].IsProcessed())

	// redelivery keeps the first paid_at
	later, sig2 := signedEvent(t, WebhookEvent{ID: "evt_2", Type: EventPaymentSucceeded, PaymentID: "pay_1", CreatedAt: at.Add(time.Hour)})
	require.NoError(t, svc.HandleWebhook(context.Background(), later, sig2))
	assert.Equal(t, at, *sessions.rows[7].PaidAt)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	svc := NewService(Config{WebhookSecret: testSecret}, &stubProvider{}, newMemSessions(), newMemEvents())
	body, _ := signedEvent(t, WebhookEvent{ID: "evt_1", Type: EventCheckoutCompleted})

	err := svc.HandleWebhook(context.Background(), body, "deadbeef")
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	s := testSession()
	s.PaymentID = "pay_1"
	sessions := newMemSessions(s)
	svc := NewService(Config{WebhookSecret: testSecret}, &stubProvider{}, sessions, newMemEvents())

	body, sig := signedEvent(t, WebhookEvent{ID: "evt_3", Type: EventPaymentFailed, PaymentID: "pay_1"})
	require.NoError(t, svc.HandleWebhook(context.Background(), body, sig))
	assert.Nil(t, sessions.rows[7].PaidAt)

	unknown, sig := signedEvent(t, WebhookEvent{ID: "evt_4", Type: EventCheckoutCompleted, PaymentID: "pay_404"})
	assert.NoError(t, svc.HandleWebhook(context.Background(), unknown, sig))
}

func TestHTTPProviderCreateCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkouts", r.URL.Path)
		assert.Equal(t, "Bearer key_1", r.Header.Get("Authorization"))
		var req CheckoutRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sess-7", req.Reference)
		assert.Equal(t, int64(499), req.AmountCents)
		_, _ = w.Write([]byte(`{"id":"pay_9","url":"https://pay.example/c/9"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{APIURL: srv.URL, APIKey: "key_1"})
	out, err := p.CreateCheckout(context.Background(), CheckoutRequest{Reference: "sess-7", AmountCents: 499, Currency: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, "pay_9", out.ID)
}

func TestHTTPProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(Config{APIURL: srv.URL}).CreateCheckout(context.Background(), CheckoutRequest{Reference: "x"})
	assert.Error(t, err)

	_, err = NewHTTPProvider(Config{}).CreateCheckout(context.Background(), CheckoutRequest{})
	assert.Error(t, err)
}
