package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/constants"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/env"
)

var reFilenameDate = regexp.MustCompile(`(\d{4})[-_.]?(\d{2})[-_.]?(\d{2})`)

// Config for the OpenAI-compatible extraction client
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float32
	Timeout         time.Duration
	DefaultCurrency string
	Lenient         bool
}

// LoadConfig reads OPENAI_* settings
func LoadConfig() Config {
	return Config{
		APIKey:          env.GetEnv("OPENAI_API_KEY", ""),
		BaseURL:         env.GetEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:           env.GetEnv("OPENAI_MODEL", "gpt-4o-mini"),
		Temperature:     0,
		Timeout:         env.GetDuration("OPENAI_TIMEOUT", 45*time.Second),
		DefaultCurrency: env.GetEnv("OPENAI_DEFAULT_CURRENCY", "USD"),
		Lenient:         env.GetBool("OPENAI_LENIENT", true),
	}
}

// Client implements Extractor against a vision chat completions endpoint
type Client struct {
	cfg        Config
	loader     *Loader
	schema     *Schema
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates the extraction client
func NewClient(cfg Config, loader *Loader) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("OPENAI_BASE_URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	schema, err := CompileSchema(BuildReceiptJSONSchema(constants.AsStringSlice()))
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:        cfg,
		loader:     loader,
		schema:     schema,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}, nil
}

func (c *Client) Extract(ctx context.Context, fileURL, filename string) (*models.ExtractedData, error) {
	start := time.Now()

	src, err := c.loader.Load(ctx, fileURL, filename)
	if err != nil {
		return nil, AsFailure(err)
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": c.systemPrompt()},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(c.schema.Map())},
			{"role": "user", "content": userContent(src)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		log.Errorf("[Extraction] Request for %s failed after %s: %v", filename, time.Since(start), err)
		return nil, Fail(StageRequest, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, Fail(StageDecode, fmt.Errorf("decode completion: %w", err))
	}
	if len(cc.Choices) == 0 {
		return nil, Fail(StageDecode, fmt.Errorf("no choices in completion"))
	}
	content := []byte(stripCodeFence(cc.Choices[0].Message.Content))

	if err := c.schema.Validate(content); err != nil {
		if !c.cfg.Lenient {
			return nil, Fail(StageSchema, err)
		}
		cleaned, touched, nErr := Normalize(content)
		if nErr != nil {
			return nil, Fail(StageSchema, nErr)
		}
		if vErr := c.schema.Validate(cleaned); vErr != nil {
			return nil, Fail(StageSchema, vErr)
		}
		log.Warnf("[Extraction] Lenient normalization applied for %s: %v", filename, touched)
		content = cleaned
	}

	var reply modelReply
	if err := json.Unmarshal(content, &reply); err != nil {
		return nil, Fail(StageDecode, fmt.Errorf("unmarshal reply: %w", err))
	}

	data := reply.toExtractedData(filename, c.cfg.DefaultCurrency, c.now())
	if err := data.Validate(); err != nil {
		return nil, Fail(StageValidate, err)
	}

	log.Infof("[Extraction] %s -> %s %s %s (%.2f) in %s",
		filename, data.MerchantName, data.Amount, data.Currency, data.Confidence, time.Since(start))
	return &data, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}
	return raw, nil
}

func (c *Client) systemPrompt() string {
	parts := []string{
		"You are a receipts parser. Return ONLY JSON that matches the provided JSON Schema.",
		"Use ISO-8601 dates (YYYY-MM-DD) for receipt_date and omit it when no date is printed.",
		"amount is the grand total paid, as a decimal string with two places.",
		"currency must be a 3-letter ISO 4217 code; default to " + c.cfg.DefaultCurrency + " if uncertain.",
		"category MUST be exactly one of: " + strings.Join(constants.AsStringSlice(), ", ") + ". If uncertain, choose Other.",
		"confidence is your certainty in the extracted values between 0 and 1.",
		"Use extraction_notes for anything a reviewer should know, such as illegible totals.",
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

func userContent(src *Source) []map[string]any {
	text := map[string]any{"type": "text", "text": "Filename: " + src.Filename + "\nExtract the receipt fields."}
	if src.IsPDF() {
		return []map[string]any{text, {
			"type": "file",
			"file": map[string]any{"filename": src.Filename, "file_data": src.DataURL()},
		}}
	}
	return []map[string]any{text, {
		"type":      "image_url",
		"image_url": map[string]any{"url": src.DataURL(), "detail": "high"},
	}}
}

type modelReply struct {
	MerchantName string   `json:"merchant_name"`
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	ReceiptDate  string   `json:"receipt_date"`
	Category     string   `json:"category"`
	Confidence   *float64 `json:"confidence"`
	Notes        string   `json:"extraction_notes"`
}

// toExtractedData fills defaults. A missing date is taken from the filename, else the upload day.
func (r modelReply) toExtractedData(filename, defaultCurrency string, now time.Time) models.ExtractedData {
	cat, _ := constants.Canonicalize(r.Category)
	data := models.ExtractedData{
		MerchantName: strings.TrimSpace(r.MerchantName),
		Amount:       strings.TrimSpace(r.Amount),
		Category:     string(cat),
		Currency:     strings.ToUpper(strings.TrimSpace(r.Currency)),
		Confidence:   0.5,
		Notes:        r.Notes,
	}
	if amount, ok := normalizeMoney(r.Amount); ok {
		data.Amount = amount
	}
	if data.Currency == "" {
		data.Currency = defaultCurrency
	}
	if r.Confidence != nil {
		data.Confidence = *r.Confidence
	}

	switch {
	case validDate(r.ReceiptDate):
		data.ReceiptDate = r.ReceiptDate
		data.DateSource = "receipt"
	case dateFromFilename(filename) != "":
		data.ReceiptDate = dateFromFilename(filename)
		data.DateSource = "filename"
	default:
		data.ReceiptDate = now.UTC().Format("2006-01-02")
		data.DateSource = "upload"
	}
	return data
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func dateFromFilename(filename string) string {
	m := reFilenameDate.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	d := m[1] + "-" + m[2] + "-" + m[3]
	if !validDate(d) {
		return ""
	}
	return d
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
