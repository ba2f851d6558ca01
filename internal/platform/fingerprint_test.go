// ABOUTME: Tests for API key fingerprints
// ABOUTME: Checks stability, length and that the key does not leak

package platform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyFingerprint(t *testing.T) {
	a := KeyFingerprint("sk-live-secret")
	assert.Len(t, a, 12)
	assert.Equal(t, a, KeyFingerprint("sk-live-secret"))
	assert.NotEqual(t, a, KeyFingerprint("sk-live-secret2"))
	assert.False(t, strings.Contains(a, "secret"))
	assert.Equal(t, "none", KeyFingerprint(""))
}
