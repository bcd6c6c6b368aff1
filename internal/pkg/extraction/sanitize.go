package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ManuelReschke/ReceiptFox/internal/pkg/constants"
)

var (
	reDecimal   = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
	reMoneyJunk = regexp.MustCompile(`[^\d.,-]`)
)

var knownKeys = map[string]struct{}{
	"merchant_name": {}, "amount": {}, "currency": {}, "receipt_date": {},
	"category": {}, "confidence": {}, "extraction_notes": {},
}

// Normalize rewrites a model reply so near-miss documents still validate:
// synonyms are renamed, money is reformatted to two decimals, unknown keys and nulls are dropped.
// It returns the rewritten document and the keys it touched.
func Normalize(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("normalize: decode: %w", err)
	}

	touched := make([]string, 0, 4)
	rename := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			touched = append(touched, from+"->"+to)
		}
	}
	rename("merchant", "merchant_name")
	rename("total", "amount")
	rename("currency_code", "currency")
	rename("date", "receipt_date")
	rename("tx_date", "receipt_date")
	rename("notes", "extraction_notes")

	for k, v := range m {
		if v == nil {
			delete(m, k)
			touched = append(touched, k+"(null)")
		}
	}

	if v, ok := m["amount"]; ok {
		if s, ok := normalizeMoney(v); ok {
			m["amount"] = s
		} else {
			delete(m, "amount")
			touched = append(touched, "amount(invalid)")
		}
	}
	if v, ok := m["currency"].(string); ok {
		m["currency"] = strings.ToUpper(strings.TrimSpace(v))
	}
	if v, ok := m["category"].(string); ok {
		cat, _ := constants.Canonicalize(v)
		m["category"] = string(cat)
	}
	if v, ok := m["confidence"].(string); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			m["confidence"] = f
		} else {
			delete(m, "confidence")
		}
	}
	if v, ok := m["receipt_date"].(string); ok && len(strings.TrimSpace(v)) >= 10 {
		m["receipt_date"] = strings.TrimSpace(v)[:10]
	}

	for k := range m {
		if _, ok := knownKeys[k]; !ok {
			delete(m, k)
			touched = append(touched, k+"(unknown)")
		}
	}
	for _, k := range []string{"merchant_name", "receipt_date", "extraction_notes"} {
		if v, ok := m[k].(string); ok {
			s := strings.TrimSpace(v)
			if s == "" {
				delete(m, k)
				touched = append(touched, k+"(empty)")
			} else {
				m[k] = s
			}
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, touched, fmt.Errorf("normalize: encode: %w", err)
	}
	return out, touched, nil
}

// normalizeMoney accepts numbers and strings like "$12.5" or "12,50" and formats them as "12.50"
func normalizeMoney(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return "", false
		}
		return fmt.Sprintf("%.2f", t), true
	case string:
		s := reMoneyJunk.ReplaceAllString(strings.TrimSpace(t), "")
		if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
			s = strings.Replace(s, ",", ".", 1)
		}
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 {
			return "", false
		}
		out := fmt.Sprintf("%.2f", f)
		return out, reDecimal.MatchString(out)
	default:
		return "", false
	}
}
