package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// StaticClient is a deterministic, dependency-free embedder using the
// feature-hashing trick: each token lands on a dimension chosen by hash,
// with a hash-chosen sign, and the vector is L2-normalized. Texts sharing
// vocabulary get high cosine similarity. It exists for offline local mode
// and tests; a hosted model replaces it in production via the settings file.
type StaticClient struct {
	dimensions int
}

// Compile-time check that StaticClient implements Client.
var _ Client = (*StaticClient)(nil)

// NewStaticClient creates a feature-hash embedder with the given
// dimensionality.
func NewStaticClient(dimensions int) *StaticClient {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &StaticClient{dimensions: dimensions}
}

// Dimensions returns the vector dimensionality.
func (c *StaticClient) Dimensions() int { return c.dimensions }

// Embed hashes text tokens into a normalized vector. Empty text embeds to
// the zero vector.
func (c *StaticClient) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, c.dimensions)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()

		dim := int(sum % uint64(c.dimensions))
		if (sum>>32)&1 == 0 {
			vec[dim]++
		} else {
			vec[dim]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
}
