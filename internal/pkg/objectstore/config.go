package objectstore

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ManuelReschke/ReceiptFox/internal/pkg/env"
)

// Config holds receipt bucket configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicBaseURL   string // Base of the file URLs handed to clients; defaults to endpoint/bucket
	PresignTTL      time.Duration
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PublicBaseURL:   env.GetEnv("S3_PUBLIC_BASE_URL", ""),
		PresignTTL:      env.GetDuration("S3_PRESIGN_TTL", 15*time.Minute),
		Enabled:         env.GetBool("S3_ENABLED", false),
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if the object store is configured
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey generates the key for a receipt upload.
// Format: receipts/<userID>/YYYY/MM/<uuid>.<ext>
func (c *Config) ObjectKey(userID uint, fileName string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("receipts/%d/%04d/%02d/%s%s", userID, now.Year(), int(now.Month()), uuid.New().String(), ext)
}

// BaseURL returns the prefix under which objects of the bucket are addressed
func (c *Config) BaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/")
	}
	if c.EndpointURL != "" {
		return strings.TrimRight(c.EndpointURL, "/") + "/" + c.BucketName
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", c.BucketName, c.Region)
}

// ObjectURL returns the client-facing URL of a key
func (c *Config) ObjectURL(key string) string {
	return c.BaseURL() + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL returns the object key when rawURL points into this bucket
func (c *Config) KeyFromURL(rawURL string) (string, bool) {
	base := c.BaseURL() + "/"
	u := strings.TrimSpace(rawURL)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if !strings.HasPrefix(u, base) {
		return "", false
	}
	key := strings.TrimPrefix(u, base)
	if key == "" {
		return "", false
	}
	return key, true
}
