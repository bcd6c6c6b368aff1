package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ReceiptFox/app/models"
)

const (
	ResultKeyPrefix  = "ocr:result:"
	DefaultResultTTL = 30 * 24 * time.Hour
)

// ResultCache stores extraction results per (user, normalized file URL). It is never authoritative.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ResultCache{client: client, ttl: ttl}
}

// presign query parameters rotate on every signed URL for the same object
var signatureParams = []string{"x-amz-", "x-goog-", "awsaccesskeyid", "signature", "expires"}

func isSignatureParam(name string) bool {
	name = strings.ToLower(name)
	for _, p := range signatureParams {
		if name == p || (strings.HasSuffix(p, "-") && strings.HasPrefix(name, p)) {
			return true
		}
	}
	return false
}

// NormalizeURL drops presign parameters and the fragment, lowercases scheme and host and
// strips a trailing slash. Other query parameters identify the file and are kept, sorted.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	query := u.Query()
	for name := range query {
		if isSignatureParam(name) {
			query.Del(name)
		}
	}
	u.RawQuery = query.Encode()
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// ResultKey builds the Redis key for a user and file URL
func ResultKey(userID uint, fileURL string) string {
	sum := sha256.Sum256([]byte(NormalizeURL(fileURL)))
	return fmt.Sprintf("%s%d:%s", ResultKeyPrefix, userID, hex.EncodeToString(sum[:]))
}

// Get returns the cached result. A miss is (nil, false, nil).
func (c *ResultCache) Get(ctx context.Context, userID uint, fileURL string) (*models.ExtractedData, bool, error) {
	raw, err := c.client.Get(ctx, ResultKey(userID, fileURL)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var data models.ExtractedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	if err := data.Validate(); err != nil {
		// stale shape from an older release
		return nil, false, nil
	}
	return &data, true, nil
}

func (c *ResultCache) Put(ctx context.Context, userID uint, fileURL string, data models.ExtractedData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, ResultKey(userID, fileURL), raw, c.ttl).Err()
}
