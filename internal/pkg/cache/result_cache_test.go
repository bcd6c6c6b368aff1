package cache

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/env"
)

const isolatedCacheTestRedisDB = 13

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       isolatedCacheTestRedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"Lowercases scheme and host", "HTTPS://Bucket.S3.Example.COM/Receipts/A.jpg", "https://bucket.s3.example.com/Receipts/A.jpg"},
		{"Drops presign query", "https://b.example.com/r/a.jpg?X-Amz-Signature=abc&X-Amz-Expires=900", "https://b.example.com/r/a.jpg"},
		{"Keeps identifying query", "https://files.example.com/download?id=111&X-Amz-Date=20261019T000000Z", "https://files.example.com/download?id=111"},
		{"Sorts remaining query", "https://files.example.com/download?v=2&id=111", "https://files.example.com/download?id=111&v=2"},
		{"Drops legacy signature", "https://b.example.com/r/a.jpg?AWSAccessKeyId=K&Signature=s&Expires=1", "https://b.example.com/r/a.jpg"},
		{"Drops fragment", "https://b.example.com/r/a.jpg#page=2", "https://b.example.com/r/a.jpg"},
		{"Trims whitespace and trailing slash", "  https://b.example.com/r/a.jpg/ ", "https://b.example.com/r/a.jpg"},
		{"Not a URL", "receipts/a.jpg?v=1#p", "receipts/a.jpg?v=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeURL(tt.in))
		})
	}
}

func TestNewResultCacheDefaultTTL(t *testing.T) {
	assert.Equal(t, 720*time.Hour, DefaultResultTTL)
	assert.Equal(t, DefaultResultTTL, NewResultCache(nil, 0).ttl)
	assert.Equal(t, time.Minute, NewResultCache(nil, time.Minute).ttl)
}

func TestResultKey(t *testing.T) {
	a := ResultKey(7, "https://b.example.com/r/a.jpg?X-Amz-Signature=1")
	b := ResultKey(7, "HTTPS://B.EXAMPLE.COM/r/a.jpg?X-Amz-Signature=2")
	other := ResultKey(8, "https://b.example.com/r/a.jpg")

	assert.True(t, strings.HasPrefix(a, "ocr:result:7:"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)

	first := ResultKey(7, "https://files.example.com/download?id=111")
	second := ResultKey(7, "https://files.example.com/download?id=222")
	assert.NotEqual(t, first, second)
}

func TestResultCacheRoundTrip(t *testing.T) {
	client := newTestRedisClient(t)
	rc := NewResultCache(client, time.Minute)
	ctx := context.Background()
	url := "https://b.example.com/r/a.jpg"

	data, hit, err := rc.Get(ctx, 1, url)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, data)

	payload := models.ExtractedData{
		MerchantName: "Cafe", Amount: "12.40", Category: "Meals",
		ReceiptDate: "2026-10-02", Currency: "EUR", Confidence: 0.8,
	}
	require.NoError(t, rc.Put(ctx, 1, url, payload))

	data, hit, err = rc.Get(ctx, 1, url+"?X-Amz-Signature=zzz")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload, *data)

	_, hit, err = rc.Get(ctx, 2, url)
	require.NoError(t, err)
	assert.False(t, hit, "cache entries are scoped per user")

	ttl, err := client.TTL(ctx, ResultKey(1, url)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)
}
