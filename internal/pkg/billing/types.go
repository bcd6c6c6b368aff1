package billing

import "time"

// Event types sent by the payment provider. Anything else is acknowledged and ignored.
const (
	EventCheckoutCompleted = "checkout.completed"
	EventPaymentSucceeded  = "payment.succeeded"
	EventPaymentFailed     = "payment.failed"
)

// CheckoutRequest describes a one-time charge for a single batch session
type CheckoutRequest struct {
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	SuccessURL  string `json:"success_url,omitempty"`
	CancelURL   string `json:"cancel_url,omitempty"`
}

// Checkout is the provider's answer to a CheckoutRequest
type Checkout struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// WebhookEvent is the subset of the provider payload the service acts on
type WebhookEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	PaymentID string    `json:"payment_id"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// IsPaid reports whether the event confirms the charge
func (e WebhookEvent) IsPaid() bool {
	return e.Type == EventCheckoutCompleted || e.Type == EventPaymentSucceeded
}
