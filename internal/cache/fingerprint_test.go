package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintOf(t *testing.T) {
	a := FingerprintOf([]byte("same bytes"))
	b := FingerprintOf([]byte("same bytes"))
	c := FingerprintOf([]byte("other bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a.String(), 64)

	// well-known digest of the empty input
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", FingerprintOf(nil).String())
}
