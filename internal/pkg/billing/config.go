package billing

import (
	"strings"

	"github.com/ManuelReschke/ReceiptFox/internal/pkg/env"
)

const (
	defaultPriceCents = 499
	defaultCurrency   = "EUR"
)

// Config holds the payment provider settings
type Config struct {
	APIURL        string
	APIKey        string
	WebhookSecret string
	PriceCents    int64
	Currency      string
	SuccessURL    string
	CancelURL     string
}

func LoadConfig() Config {
	return Config{
		APIURL:        strings.TrimRight(env.GetEnv("PAYMENT_API_URL", ""), "/"),
		APIKey:        env.GetEnv("PAYMENT_API_KEY", ""),
		WebhookSecret: env.GetEnv("PAYMENT_WEBHOOK_SECRET", ""),
		PriceCents:    int64(env.GetInt("BATCH_PRICE_CENTS", defaultPriceCents)),
		Currency:      strings.ToUpper(env.GetEnv("PAYMENT_CURRENCY", defaultCurrency)),
		SuccessURL:    env.GetEnv("PAYMENT_SUCCESS_URL", ""),
		CancelURL:     env.GetEnv("PAYMENT_CANCEL_URL", ""),
	}
}

// Enabled reports whether checkouts can be created at all
func (c Config) Enabled() bool {
	return c.APIURL != "" && c.APIKey != ""
}
