package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCount(t *testing.T) {
	c := NewCounter()

	assert.Equal(t, 0, c.Count(""))
	assert.Greater(t, c.Count("hello world"), 0)

	// Longer text costs more tokens.
	short := c.Count("quarterly revenue")
	long := c.Count("quarterly revenue broken down by region and product line")
	assert.Greater(t, long, short)
}

func TestCountFallback(t *testing.T) {
	c := &Counter{} // no codec

	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("abc"))
	assert.Equal(t, 2, c.Count("abcdefgh"))
}
