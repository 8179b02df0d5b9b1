// Package search implements hybrid lexical-semantic passage ranking: vector
// similarity and keyword rank combined into one ordered candidate list.
package search

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/switchboard/internal/config"
	"github.com/thebtf/switchboard/pkg/models"
)

// Search configuration constants.
const (
	// candidateFactor widens each branch to 2x the requested match count
	// before the union, so a passage strong in only one signal still has a
	// seat when the other branch's candidates drop out.
	candidateFactor = 2

	// slowSearchThreshold triggers slow-search logging.
	slowSearchThreshold = 100 * time.Millisecond

	// queryLogTruncateLen truncates query text in logs.
	queryLogTruncateLen = 50
)

// Candidate is one passage produced by a backend branch. Semantic
// candidates carry Similarity; keyword candidates carry Rank.
type Candidate struct {
	ID         string
	SourceRef  string
	Content    string
	Similarity float64
	Rank       float64
	Metadata   map[string]any
}

// Index is the retrieval backend. Implementations: the PostgreSQL store
// (pgvector + tsvector) and the SQLite store (in-process cosine + term
// frequency).
type Index interface {
	// SemanticSearch returns up to k passages in the workspace whose cosine
	// similarity to vector is above threshold, most similar first.
	SemanticSearch(ctx context.Context, workspaceID string, vector []float32, k int, threshold float64) ([]Candidate, error)

	// KeywordSearch returns up to k passages in the workspace matching the
	// parsed query text, best rank first.
	KeywordSearch(ctx context.Context, workspaceID, query string, k int) ([]Candidate, error)
}

// RankedPassage is one hybrid result. Combined is the ranking score:
// Similarity x semanticWeight plus a flat bonus when any keyword match
// exists.
type RankedPassage struct {
	ID           string         `json:"id"`
	SourceRef    string         `json:"sourceRef,omitempty"`
	Content      string         `json:"content"`
	Similarity   float64        `json:"similarity"`
	Rank         float64        `json:"rank"`
	Combined     float64        `json:"combined"`
	KeywordMatch bool           `json:"keywordMatch"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Options tunes one search. Zero values fall back to configuration.
type Options struct {
	Strategy            models.SearchStrategy
	MatchCount          int
	SimilarityThreshold float64
}

// Metrics tracks search performance statistics.
type Metrics struct {
	TotalSearches    int64
	SemanticSearches int64
	KeywordSearches  int64
	SearchErrors     int64
	TotalLatencyNs   int64
}

// GetStats returns the current search statistics.
func (m *Metrics) GetStats() map[string]any {
	total := atomic.LoadInt64(&m.TotalSearches)
	latency := atomic.LoadInt64(&m.TotalLatencyNs)

	avgLatencyMs := float64(0)
	if total > 0 {
		avgLatencyMs = float64(latency) / float64(total) / 1e6
	}

	return map[string]any{
		"total_searches":    total,
		"semantic_searches": atomic.LoadInt64(&m.SemanticSearches),
		"keyword_searches":  atomic.LoadInt64(&m.KeywordSearches),
		"search_errors":     atomic.LoadInt64(&m.SearchErrors),
		"avg_latency_ms":    avgLatencyMs,
	}
}

// Manager runs hybrid searches against an Index.
type Manager struct {
	index   Index
	cfg     *config.Config
	metrics *Metrics
}

// NewManager creates a search manager.
func NewManager(index Index, cfg *config.Config) *Manager {
	return &Manager{
		index:   index,
		cfg:     cfg,
		metrics: &Metrics{},
	}
}

// Metrics exposes the manager's counters.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Search ranks passages in the workspace against the query text and its
// embedding. An empty query disables the keyword branch; a nil embedding
// disables the semantic branch; both absent yields an empty result, not an
// error. A single failing branch degrades to the other; an error is
// returned only when no branch produced candidates.
func (m *Manager) Search(ctx context.Context, workspaceID, query string, embedding []float32, opts Options) ([]RankedPassage, error) {
	start := time.Now()
	atomic.AddInt64(&m.metrics.TotalSearches, 1)
	defer func() {
		elapsed := time.Since(start)
		atomic.AddInt64(&m.metrics.TotalLatencyNs, elapsed.Nanoseconds())
		if elapsed > slowSearchThreshold {
			log.Warn().
				Str("workspace", workspaceID).
				Str("query", truncate(query, queryLogTruncateLen)).
				Dur("took", elapsed).
				Msg("Slow hybrid search")
		}
	}()

	matchCount := opts.MatchCount
	if matchCount <= 0 {
		matchCount = m.cfg.DefaultMatchCount
	}
	threshold := opts.SimilarityThreshold
	if threshold <= 0 {
		threshold = m.cfg.SimilarityThreshold
	}

	wantSemantic := len(embedding) > 0 && opts.Strategy != models.SearchKeyword
	wantKeyword := query != "" && opts.Strategy != models.SearchSemantic

	if !wantSemantic && !wantKeyword {
		return nil, nil
	}

	merged := make(map[string]*RankedPassage)
	var firstErr error

	if wantSemantic {
		atomic.AddInt64(&m.metrics.SemanticSearches, 1)
		candidates, err := m.index.SemanticSearch(ctx, workspaceID, embedding, matchCount*candidateFactor, threshold)
		if err != nil {
			atomic.AddInt64(&m.metrics.SearchErrors, 1)
			firstErr = err
			log.Warn().Err(err).Str("workspace", workspaceID).Msg("Semantic search failed, degrading to keyword only")
		}
		for _, c := range candidates {
			merged[c.ID] = &RankedPassage{
				ID:         c.ID,
				SourceRef:  c.SourceRef,
				Content:    c.Content,
				Similarity: c.Similarity,
				Metadata:   c.Metadata,
			}
		}
	}

	if wantKeyword {
		atomic.AddInt64(&m.metrics.KeywordSearches, 1)
		candidates, err := m.index.KeywordSearch(ctx, workspaceID, query, matchCount*candidateFactor)
		if err != nil {
			atomic.AddInt64(&m.metrics.SearchErrors, 1)
			if firstErr == nil {
				firstErr = err
			}
			log.Warn().Err(err).Str("workspace", workspaceID).Msg("Keyword search failed, degrading to semantic only")
		}
		for _, c := range candidates {
			if existing, ok := merged[c.ID]; ok {
				existing.Rank = c.Rank
				existing.KeywordMatch = true
				continue
			}
			// Present only in the keyword set: similarity stays 0.
			merged[c.ID] = &RankedPassage{
				ID:           c.ID,
				SourceRef:    c.SourceRef,
				Content:      c.Content,
				Rank:         c.Rank,
				KeywordMatch: true,
				Metadata:     c.Metadata,
			}
		}
	}

	if len(merged) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, nil
	}

	results := make([]RankedPassage, 0, len(merged))
	for _, p := range merged {
		p.Combined = p.Similarity * m.cfg.SemanticWeight
		if p.KeywordMatch {
			p.Combined += m.cfg.KeywordBonus
		}
		results = append(results, *p)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Combined != results[j].Combined {
			return results[i].Combined > results[j].Combined
		}
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > matchCount {
		results = results[:matchCount]
	}
	return results, nil
}

// truncate shortens s for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
