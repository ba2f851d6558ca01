// ABOUTME: Short, non-reversible API key fingerprints for log lines
// ABOUTME: Keys themselves are never logged

package platform

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// KeyFingerprint returns a 12-character blake2b fingerprint of apiKey, or
// "none" for an empty key.
func KeyFingerprint(apiKey string) string {
	if apiKey == "" {
		return "none"
	}
	sum := blake2b.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:6])
}
