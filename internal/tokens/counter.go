// Package tokens estimates token counts for context budgeting.
package tokens

import (
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// fallbackDivisor approximates tokens from bytes when no codec is available.
// Four bytes per token is the usual rule of thumb for English prose.
const fallbackDivisor = 4

// Counter counts tokens with the cl100k_base encoding, falling back to a
// byte estimate if the codec cannot be constructed.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter builds a Counter. Construction never fails; a missing codec
// only degrades accuracy.
func NewCounter() *Counter {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("Tokenizer unavailable, falling back to byte estimate")
		return &Counter{}
	}
	return &Counter{codec: codec}
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.codec != nil {
		if n, err := c.codec.Count(text); err == nil {
			return n
		}
	}
	return (len(text) + fallbackDivisor - 1) / fallbackDivisor
}
