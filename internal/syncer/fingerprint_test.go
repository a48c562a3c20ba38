package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("alice@example.com", "Invoice", "please pay")
	b := Fingerprint("alice@example.com", "Invoice", "please pay")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintDistinguishesFields(t *testing.T) {
	base := Fingerprint("alice@example.com", "Invoice", "please pay")
	assert.NotEqual(t, base, Fingerprint("bob@example.com", "Invoice", "please pay"))
	assert.NotEqual(t, base, Fingerprint("alice@example.com", "Receipt", "please pay"))
	assert.NotEqual(t, base, Fingerprint("alice@example.com", "Invoice", "paid already"))
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// Concatenation must not let adjacent fields bleed into each other
	assert.NotEqual(t,
		Fingerprint("ab", "c", "d"),
		Fingerprint("a", "bc", "d"),
	)
}
