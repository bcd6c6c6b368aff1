package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

// VerifyWebhookSignature checks the hex HMAC-SHA256 of the raw body. A "sha256=" prefix is accepted.
func VerifyWebhookSignature(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(sig, "sha256=")
	return verifyHMAC(payload, sig, secret, sha256.New)
}

// SignWebhookPayload returns the signature header value for payload
func SignWebhookPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(payload []byte, expectedSig, secret string, hashFunc func() hash.Hash) bool {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(expectedSig) == "" {
		return false
	}
	expectedBytes, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(expectedSig)))
	if err != nil {
		return false
	}

	mac := hmac.New(hashFunc, []byte(secret))
	_, _ = mac.Write(payload)
	computed := mac.Sum(nil)
	return hmac.Equal(computed, expectedBytes)
}
