// Package gorm provides GORM-based workspace storage for switchboard.
package gorm

import (
	"context"
	"fmt"

	pgvec "github.com/pgvector/pgvector-go"

	"github.com/thebtf/switchboard/internal/db"
	"github.com/thebtf/switchboard/internal/search"
)

// UpsertPassages indexes passage chunks for retrieval. Passages without an
// embedding are stored with a NULL vector and found by keyword search only.
func (s *WorkspaceStore) UpsertPassages(ctx context.Context, workspaceID string, passages []db.PassageRecord) error {
	if len(passages) == 0 {
		return nil
	}

	upsertQuery := `
		INSERT INTO passages (id, workspace_id, source_ref, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id)
		DO UPDATE SET
			source_ref = EXCLUDED.source_ref,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding
	`

	for _, p := range passages {
		var embedding any
		if len(p.Embedding) > 0 {
			embedding = pgvec.NewVector(p.Embedding)
		}
		if _, err := s.rawDB.ExecContext(ctx, upsertQuery,
			p.ID, workspaceID, p.SourceRef, p.Content, embedding); err != nil {
			return fmt.Errorf("upsert passage %s: %w", p.ID, err)
		}
	}

	return nil
}

// SemanticSearch returns up to k passages in the workspace whose cosine
// similarity to vector is above threshold, most similar first.
func (s *WorkspaceStore) SemanticSearch(ctx context.Context, workspaceID string, vector []float32, k int, threshold float64) ([]search.Candidate, error) {
	query := `
		SELECT id, source_ref, content, 1 - (embedding <=> $1) AS similarity
		FROM passages
		WHERE workspace_id = $2
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4
	`

	rows, err := s.rawDB.QueryContext(ctx, query, pgvec.NewVector(vector), workspaceID, threshold, k)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	candidates := make([]search.Candidate, 0, k)
	for rows.Next() {
		var c search.Candidate
		if err := rows.Scan(&c.ID, &c.SourceRef, &c.Content, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan semantic row: %w", err)
		}
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate semantic rows: %w", err)
	}

	return candidates, nil
}

// KeywordSearch returns up to k passages in the workspace matching the
// parsed query text, best rank first. Ties break on id for a stable order.
func (s *WorkspaceStore) KeywordSearch(ctx context.Context, workspaceID, query string, k int) ([]search.Candidate, error) {
	searchQuery := `
		SELECT id, source_ref, content,
		       ts_rank(search_vector, websearch_to_tsquery('english', $1)) AS rank
		FROM passages
		WHERE workspace_id = $2
		  AND search_vector @@ websearch_to_tsquery('english', $1)
		ORDER BY rank DESC, id ASC
		LIMIT $3
	`

	rows, err := s.rawDB.QueryContext(ctx, searchQuery, query, workspaceID, k)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	candidates := make([]search.Candidate, 0, k)
	for rows.Next() {
		var c search.Candidate
		if err := rows.Scan(&c.ID, &c.SourceRef, &c.Content, &c.Rank); err != nil {
			return nil, fmt.Errorf("scan keyword row: %w", err)
		}
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword rows: %w", err)
	}

	return candidates, nil
}
