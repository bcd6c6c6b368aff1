package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingSecret  = errors.New("secret is required")
	ErrTokenFormat    = errors.New("invalid token format")
	ErrTokenSignature = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMismatch  = errors.New("token does not match request")
)

// TaskTokenClaims binds a callback token to one job type and one exact request body
type TaskTokenClaims struct {
	JobType   string `json:"job_type"`
	BodyHash  string `json:"body_sha256"`
	ExpiresAt int64  `json:"exp"`
}

func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// GenerateTaskToken signs a token for delivering body to the task endpoint of jobType
func GenerateTaskToken(jobType string, body []byte, ttl time.Duration, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	claims := TaskTokenClaims{
		JobType:   jobType,
		BodyHash:  BodyHash(body),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	sig := sign(payload, secret)
	return fmt.Sprintf("%s.%s", base64.RawURLEncoding.EncodeToString(payload), base64.RawURLEncoding.EncodeToString(sig)), nil
}

// VerifyTaskToken checks signature, expiry and that the token was issued for this job type and body
func VerifyTaskToken(token, jobType string, body []byte, secret string) (*TaskTokenClaims, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	parts := strings.SplitN(strings.TrimSpace(token), ".", 2)
	if len(parts) != 2 {
		return nil, ErrTokenFormat
	}
	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrTokenFormat
	}
	sigBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrTokenFormat
	}
	if !hmac.Equal(sigBytes, sign(payloadBytes, secret)) {
		return nil, ErrTokenSignature
	}
	var claims TaskTokenClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, ErrTokenFormat
	}
	if time.Now().Unix() > claims.ExpiresAt {
		return nil, ErrTokenExpired
	}
	if claims.JobType != jobType || !hmac.Equal([]byte(claims.BodyHash), []byte(BodyHash(body))) {
		return nil, ErrTokenMismatch
	}
	return &claims, nil
}

func sign(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
