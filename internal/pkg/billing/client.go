package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const providerTimeout = 15 * time.Second

// Provider creates hosted checkouts
type Provider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
}

// HTTPProvider talks to the provider's REST API with a bearer key
type HTTPProvider struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPProvider(cfg Config) *HTTPProvider {
	return &HTTPProvider{
		baseURL: cfg.APIURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: providerTimeout},
	}
}

func (p *HTTPProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if p.baseURL == "" {
		return nil, errors.New("payment provider is not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/checkouts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.Reference)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read checkout response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create checkout: provider returned %d", resp.StatusCode)
	}

	var out Checkout
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode checkout: %w", err)
	}
	if out.ID == "" || out.URL == "" {
		return nil, errors.New("create checkout: provider response missing id or url")
	}
	return &out, nil
}
