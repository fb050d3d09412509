package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Paddle-style webhook signature headers.
const (
	HeaderSignature = "Paddle-Signature"
	HeaderTimestamp = "Paddle-Timestamp"
)

// Sign computes the hex HMAC-SHA256 signature of a payload bound to a
// timestamp. Signature format: HMAC-SHA256(secret, timestamp + "." + body).
// Timestamp binding prevents replay of captured deliveries.
func Sign(secret []byte, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, secret)
	fmt.Fprintf(h, "%s.%s", timestamp, body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a presented signature against the expected HMAC
// using a constant-time comparison.
func VerifySignature(secret []byte, timestamp string, body []byte, signature string) bool {
	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
