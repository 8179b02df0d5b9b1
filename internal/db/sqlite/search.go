package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/thebtf/switchboard/internal/db"
	"github.com/thebtf/switchboard/internal/search"
)

// UpsertPassages indexes passage chunks for retrieval. Passages without an
// embedding are stored with a NULL blob and found by keyword search only.
// The FTS triggers keep passages_fts in sync on insert and update.
func (s *WorkspaceStore) UpsertPassages(ctx context.Context, workspaceID string, passages []db.PassageRecord) error {
	if len(passages) == 0 {
		return nil
	}

	for _, p := range passages {
		var blob any
		if len(p.Embedding) > 0 {
			blob = encodeFloat32s(p.Embedding)
		}
		if _, err := s.store.ExecContext(ctx, `
			INSERT INTO passages (id, workspace_id, source_ref, content, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source_ref = excluded.source_ref,
				content = excluded.content,
				embedding = excluded.embedding
		`, p.ID, workspaceID, p.SourceRef, p.Content, blob, nowString()); err != nil {
			return fmt.Errorf("upsert passage %s: %w", p.ID, err)
		}
	}

	return nil
}

// SemanticSearch performs brute-force cosine similarity over the workspace's
// embedded passages, returning up to k candidates above threshold, most
// similar first. Fine for workspace-sized corpora; an ANN index would be the
// next step past ~100K passages.
func (s *WorkspaceStore) SemanticSearch(ctx context.Context, workspaceID string, vector []float32, k int, threshold float64) ([]search.Candidate, error) {
	rows, err := s.store.QueryContext(ctx, `
		SELECT id, source_ref, content, embedding
		FROM passages
		WHERE workspace_id = ? AND embedding IS NOT NULL
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	candidates := make([]search.Candidate, 0)
	for rows.Next() {
		var (
			c    search.Candidate
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.SourceRef, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan passage row: %w", err)
		}

		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", c.ID, err)
		}

		c.Similarity = cosineSimilarity(vector, embedding)
		if c.Similarity >= threshold {
			candidates = append(candidates, c)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passage rows: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return candidates, nil
}

// KeywordSearch performs full-text search over the workspace's passages,
// best rank first, falling back to LIKE matching when FTS finds nothing.
func (s *WorkspaceStore) KeywordSearch(ctx context.Context, workspaceID, query string, k int) ([]search.Candidate, error) {
	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	// Build FTS5 query: keyword1 OR keyword2 OR keyword3
	ftsTerms := strings.Join(keywords, " OR ")

	ftsQuery := `
		SELECT p.id, p.source_ref, p.content, -fts.rank AS score
		FROM passages p
		JOIN passages_fts fts ON p.rowid = fts.rowid
		WHERE passages_fts MATCH ?
		  AND p.workspace_id = ?
		ORDER BY fts.rank, p.id ASC
		LIMIT ?
	`

	rows, err := s.store.QueryContext(ctx, ftsQuery, ftsTerms, workspaceID, k)
	if err != nil {
		// FTS failed, try LIKE fallback
		return s.keywordLike(ctx, workspaceID, keywords, k)
	}
	defer rows.Close()

	candidates, err := scanCandidates(rows)
	if err != nil {
		return nil, err
	}

	// If FTS returned nothing, try LIKE search
	if len(candidates) == 0 {
		return s.keywordLike(ctx, workspaceID, keywords, k)
	}

	return candidates, nil
}

// keywordLike performs fallback LIKE search on passage content.
func (s *WorkspaceStore) keywordLike(ctx context.Context, workspaceID string, keywords []string, k int) ([]search.Candidate, error) {
	conditions := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords)+2)
	args = append(args, workspaceID)
	for _, kw := range keywords {
		conditions = append(conditions, "content LIKE ?")
		args = append(args, "%"+kw+"%")
	}
	args = append(args, k)

	query := fmt.Sprintf(`
		SELECT id, source_ref, content, 0 AS score
		FROM passages
		WHERE workspace_id = ? AND (%s)
		ORDER BY id ASC
		LIMIT ?
	`, strings.Join(conditions, " OR "))

	rows, err := s.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword like search: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

func scanCandidates(rows *sql.Rows) ([]search.Candidate, error) {
	candidates := make([]search.Candidate, 0)
	for rows.Next() {
		var c search.Candidate
		if err := rows.Scan(&c.ID, &c.SourceRef, &c.Content, &c.Rank); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate rows: %w", err)
	}
	return candidates, nil
}

// extractKeywords pulls searchable terms out of free-form query text.
// FieldsFunc strips everything FTS5 could mistake for query syntax.
func extractKeywords(query string) []string {
	stopWords := map[string]bool{
		"what": true, "is": true, "the": true, "a": true, "an": true,
		"how": true, "does": true, "do": true, "did": true, "can": true,
		"could": true, "would": true, "should": true, "where": true,
		"when": true, "why": true, "which": true, "who": true, "this": true,
		"that": true, "these": true, "those": true, "it": true, "its": true,
		"for": true, "from": true, "with": true, "about": true, "into": true,
		"to": true, "of": true, "in": true, "on": true, "at": true,
		"by": true, "and": true, "or": true, "but": true, "are": true,
		"was": true, "were": true, "we": true, "our": true, "all": true,
		"any": true, "show": true, "list": true, "find": true, "give": true,
		"tell": true, "me": true, "my": true, "i": true, "please": true,
	}

	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})

	var keywords []string
	seen := make(map[string]bool)

	for _, word := range words {
		if len(word) < 3 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}

	return keywords
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
