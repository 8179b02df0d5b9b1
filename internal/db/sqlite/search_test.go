package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/switchboard/internal/db"
)

func TestSemanticSearchOrdersBySimilarity(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")
	ctx := context.Background()

	// Identical to psg_1's embedding, orthogonal to psg_2's.
	hits, err := ws.SemanticSearch(ctx, "ws_1", []float32{1, 0, 0, 0}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "psg_1", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)

	// Threshold zero admits the orthogonal passage too.
	hits, err = ws.SemanticSearch(ctx, "ws_1", []float32{1, 0, 0, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "psg_1", hits[0].ID)
	assert.Equal(t, "psg_2", hits[1].ID)
}

func TestSemanticSearchHonorsK(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")

	hits, err := ws.SemanticSearch(context.Background(), "ws_1", []float32{1, 1, 0, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestSemanticSearchSkipsKeywordOnlyPassages(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")

	hits, err := ws.SemanticSearch(context.Background(), "ws_1", []float32{1, 1, 1, 1}, 10, -1)
	require.NoError(t, err)
	// psg_3 has no embedding and never appears in semantic results.
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, "psg_3", h.ID)
	}
}

func TestKeywordSearchFindsMatches(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")

	hits, err := ws.KeywordSearch(context.Background(), "ws_1", "what did we decide about the roadmap", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "psg_1", hits[0].ID)
	assert.Equal(t, "page_notes", hits[0].SourceRef)
	assert.Greater(t, hits[0].Rank, 0.0)
}

func TestKeywordSearchReachesEmbeddinglessPassage(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")

	hits, err := ws.KeywordSearch(context.Background(), "ws_1", "finance council", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "psg_3", hits[0].ID)
}

func TestKeywordSearchStopwordsOnlyQuery(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")

	hits, err := ws.KeywordSearch(context.Background(), "ws_1", "show me the", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestKeywordSearchLikeFallback(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")

	// "map" is no FTS token of the fixture but a substring of "roadmap",
	// so only the LIKE fallback can find it.
	hits, err := ws.KeywordSearch(context.Background(), "ws_1", "map", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "psg_1", hits[0].ID)
}

func TestKeywordSearchScopedToWorkspace(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")
	require.NoError(t, ws.CreateWorkspace(context.Background(), "ws_2", "Other"))

	hits, err := ws.KeywordSearch(context.Background(), "ws_2", "roadmap", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpsertPassagesReplacesContent(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")
	ctx := context.Background()

	require.NoError(t, ws.UpsertPassages(ctx, "ws_1", []db.PassageRecord{{
		ID:        "psg_1",
		SourceRef: "page_notes",
		Content:   "The launch window moved to early spring.",
		Embedding: []float32{0, 0, 1, 0},
	}}))

	// Old content is gone from the index, new content is findable.
	hits, err := ws.KeywordSearch(ctx, "ws_1", "roadmap", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = ws.KeywordSearch(ctx, "ws_1", "launch window", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "psg_1", hits[0].ID)

	sims, err := ws.SemanticSearch(ctx, "ws_1", []float32{0, 0, 1, 0}, 10, 0.9)
	require.NoError(t, err)
	require.Len(t, sims, 1)
	assert.Equal(t, "psg_1", sims[0].ID)
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"filters stopwords", "show me the pending tasks", []string{"pending", "tasks"}},
		{"punctuation only", "???", nil},
		{"dedupes terms", "tasks tasks tasks", []string{"tasks"}},
		{"drops short words", "go to q3 review", []string{"review"}},
		{"lowercases", "ROADMAP Review", []string{"roadmap", "review"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractKeywords(tt.query))
		})
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	v := []float32{0.5, -1.25, 3.75, 0}
	decoded, err := decodeFloat32s(encodeFloat32s(v))
	require.NoError(t, err)
	assert.Equal(t, v, decoded)

	_, err = decodeFloat32s([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{1, 2}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
}
