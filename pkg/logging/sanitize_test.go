package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***e@e*****e.c*m", MaskEmail("alice@example.com"))
	assert.Equal(t, "*@*.*", MaskEmail("a@b.c"))
	// Not an address: returned unchanged.
	assert.Equal(t, "not-an-email", MaskEmail("not-an-email"))
	assert.Equal(t, "@example.com", MaskEmail("@example.com"))
	assert.Equal(t, "alice@", MaskEmail("alice@"))
}

func TestBoundAndClean_StripsControlCharacters(t *testing.T) {
	assert.Equal(t, "hello world", BoundAndClean("  hello\x00 world\r\n", 0))
}

func TestBoundAndClean_BoundsLength(t *testing.T) {
	out := BoundAndClean("abcdefghij", 4)
	assert.Equal(t, "abcd", out)

	// No truncation when already short enough.
	assert.Equal(t, "abc", BoundAndClean("abc", 10))
}

func TestBoundAndClean_DoesNotSplitUTF8(t *testing.T) {
	// "héllo": the accented rune is two bytes; a cut inside it backs up.
	out := BoundAndClean("héllo", 2)
	assert.Equal(t, "h", out)
}
