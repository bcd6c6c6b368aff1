package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/app/repository"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
)

// SessionStore is the part of the batch session repository billing needs
type SessionStore interface {
	GetBySessionID(ctx context.Context, userID uint, sessionID string) (*models.BatchSession, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*models.BatchSession, error)
	SetPaymentID(ctx context.Context, id uint, paymentID string) error
	MarkPaid(ctx context.Context, id uint, paymentID string, paidAt time.Time) error
}

// Service runs the one-time checkout for a batch session and applies provider webhooks.
type Service struct {
	cfg      Config
	provider Provider
	sessions SessionStore
	events   EventStore
	now      func() time.Time
}

func NewService(cfg Config, provider Provider, sessions SessionStore, events EventStore) *Service {
	return &Service{
		cfg:      cfg,
		provider: provider,
		sessions: sessions,
		events:   events,
		now:      time.Now,
	}
}

// StartBatchCheckout creates a hosted checkout for the caller's session and remembers its payment id.
func (s *Service) StartBatchCheckout(ctx context.Context, userID uint, sessionID string) (*Checkout, error) {
	session, err := s.sessions.GetBySessionID(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, apperr.NotFound("batch session not found")
		}
		return nil, apperr.Downstream("could not load batch session", err)
	}
	if session.IsPaid() {
		return nil, apperr.Validation("batch session is already paid")
	}

	checkout, err := s.provider.CreateCheckout(ctx, CheckoutRequest{
		Reference:   session.SessionID,
		AmountCents: s.cfg.PriceCents,
		Currency:    s.cfg.Currency,
		Description: fmt.Sprintf("Receipt batch %s (%d files)", session.SessionID, len(session.Files)),
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		return nil, apperr.Downstream("payment provider unavailable", err)
	}

	if err := s.sessions.SetPaymentID(ctx, session.ID, checkout.ID); err != nil {
		return nil, apperr.Downstream("could not store payment reference", err)
	}
	log.Infof("[Billing] Checkout %s created for session %s", checkout.ID, session.SessionID)
	return checkout, nil
}

// HandleWebhook verifies and applies one provider delivery. Redelivered events are no-ops.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !VerifyWebhookSignature(payload, signature, s.cfg.WebhookSecret) {
		return apperr.Unauthorized("invalid webhook signature")
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return apperr.Validation("invalid webhook payload")
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return apperr.Validation("invalid webhook payload", "id and type are required")
	}

	created, stored, err := s.events.CreateWebhookEventIfNotExists(ctx, &models.BillingWebhookEvent{
		ProviderEventID: event.ID,
		EventType:       event.Type,
		PaymentID:       event.PaymentID,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		return apperr.Downstream("could not record webhook event", err)
	}
	if !created && stored.IsProcessed() {
		log.Infof("[Billing] Event %s already processed", event.ID)
		return nil
	}

	procErr := s.apply(ctx, event)
	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	if err := s.events.MarkWebhookProcessed(ctx, stored.ID, msg); err != nil {
		log.Warnf("[Billing] Failed to mark event %s processed: %v", event.ID, err)
	}
	return procErr
}

func (s *Service) apply(ctx context.Context, event WebhookEvent) error {
	if !event.IsPaid() {
		log.Debugf("[Billing] Ignoring event %s of type %s", event.ID, event.Type)
		return nil
	}

	session, err := s.sessions.GetByPaymentID(ctx, event.PaymentID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			// nothing to retry, the provider would deliver the same payload again
			log.Warnf("[Billing] No batch session for payment %s (event %s)", event.PaymentID, event.ID)
			return nil
		}
		return apperr.Downstream("could not load batch session", err)
	}

	paidAt := event.CreatedAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	if err := s.sessions.MarkPaid(ctx, session.ID, event.PaymentID, paidAt.UTC()); err != nil {
		return apperr.Downstream("could not mark batch session paid", err)
	}
	log.Infof("[Billing] Session %s paid (payment %s)", session.SessionID, event.PaymentID)
	return nil
}
