// Package line implements the LINE Messaging API surface: webhook
// signature verification, event envelopes, and reply clients.
package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// ValidateSignature verifies an X-Line-Signature header against the raw
// request body. The signature is base64(hmac_sha256(secret, body)); the
// comparison is constant time.
func ValidateSignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || signature == "" {
		return false
	}
	expected := computeSignature(channelSecret, body)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func computeSignature(channelSecret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(channelSecret))
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
