package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainPrefix(t *testing.T) {
	p := DomainPrefix("example.com")
	assert.Len(t, p, 2)

	// Deterministic across calls.
	assert.Equal(t, p, DomainPrefix("example.com"))

	// Matches the leading hex of the full hash.
	h := DomainHash("example.com")
	assert.Equal(t, byte(h>>56), hexNibbleByte(p))
}

func hexNibbleByte(p string) byte {
	var b byte
	for i := 0; i < 2; i++ {
		b <<= 4
		c := p[i]
		switch {
		case c >= '0' && c <= '9':
			b |= c - '0'
		case c >= 'a' && c <= 'f':
			b |= c - 'a' + 10
		}
	}
	return b
}

func TestDomainTag(t *testing.T) {
	h := DomainHash("example.com")
	assert.Equal(t, uint16(h>>48), DomainTag(h))
}

func TestURLIDStable(t *testing.T) {
	a := URLID("https://example.com/a")
	b := URLID("https://example.com/a")
	c := URLID("https://example.com/b")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
