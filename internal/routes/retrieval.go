package routes

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/switchboard/internal/config"
	"github.com/thebtf/switchboard/internal/embedding"
	"github.com/thebtf/switchboard/internal/search"
	"github.com/thebtf/switchboard/internal/tokens"
	"github.com/thebtf/switchboard/pkg/models"
)

const (
	// retrievalConfidenceHit is reported when retrieval found passages;
	// retrievalConfidenceEmpty when it came back empty. Fixed values: the
	// caller cannot compare retrieval scores across corpora, only "found
	// something relevant" versus "found nothing".
	retrievalConfidenceHit   = 0.85
	retrievalConfidenceEmpty = 0.3

	// excerptLen bounds citation excerpts.
	excerptLen = 160
)

// RetrievalHandler answers free-text queries with ranked workspace passages
// under a token budget.
type RetrievalHandler struct {
	embedder embedding.Client
	search   *search.Manager
	counter  *tokens.Counter
	cfg      *config.Config
}

var _ Handler = (*RetrievalHandler)(nil)

// NewRetrievalHandler creates the passage-retrieval handler. A nil embedder
// is allowed and limits retrieval to the keyword branch.
func NewRetrievalHandler(embedder embedding.Client, manager *search.Manager, counter *tokens.Counter, cfg *config.Config) *RetrievalHandler {
	return &RetrievalHandler{embedder: embedder, search: manager, counter: counter, cfg: cfg}
}

// Type implements Handler.
func (h *RetrievalHandler) Type() models.RouteType { return models.RouteRetrieval }

// Execute implements Handler. An embedding failure degrades to keyword-only
// search; empty results are a valid low-confidence response.
func (h *RetrievalHandler) Execute(ctx context.Context, req *Request) (*models.QueryResponse, error) {
	params, ok := req.Route.Params.(*models.RetrievalParams)
	if !ok {
		return nil, paramsError("retrieval", req.Route.Params)
	}

	queryText := params.QueryOverride
	if queryText == "" {
		queryText = req.Query
	}
	// Hand-built params may leave the strategy empty; treat that as hybrid.
	strategy := models.ParseSearchStrategy(string(params.Strategy))

	var vector []float32
	if h.embedder != nil && strategy != models.SearchKeyword {
		v, err := h.embedder.Embed(ctx, queryText)
		if err != nil {
			log.Warn().Err(err).Str("workspace", req.WorkspaceID).Msg("Embedding failed, keyword search only")
		} else {
			vector = v
		}
	}

	ranked, err := h.search.Search(ctx, req.WorkspaceID, queryText, vector, search.Options{
		Strategy:   strategy,
		MatchCount: params.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("passage search: %w", err)
	}

	included, used := h.fitBudget(ranked)
	payload := &models.PassagePayload{
		Passages:  make([]models.RetrievedPassage, 0, len(included)),
		Citations: make([]models.Citation, 0, len(included)),
	}
	for _, p := range included {
		payload.Passages = append(payload.Passages, models.RetrievedPassage{
			ID:        p.ID,
			SourceRef: p.SourceRef,
			Content:   p.Content,
			Score:     p.Combined,
		})
		payload.Citations = append(payload.Citations, models.Citation{
			PassageID: p.ID,
			Score:     p.Combined,
			Excerpt:   excerpt(p.Content, excerptLen),
		})
	}

	confidence := retrievalConfidenceEmpty
	if len(included) > 0 {
		confidence = retrievalConfidenceHit
	}
	return &models.QueryResponse{
		Type: models.ResponseContent,
		Data: payload,
		Metadata: models.ResponseMetadata{
			Source:     "retrieval",
			Confidence: confidence,
			TokenCount: models.IntPtr(used),
		},
	}, nil
}

// fitBudget keeps top-ranked passages while they fit the context token
// budget. The best passage is always included so an oversized first hit
// cannot produce an empty result.
func (h *RetrievalHandler) fitBudget(ranked []search.RankedPassage) ([]search.RankedPassage, int) {
	budget := h.cfg.ContextTokenBudget
	var included []search.RankedPassage
	used := 0
	for _, p := range ranked {
		cost := h.counter.Count(p.Content)
		if len(included) > 0 && used+cost > budget {
			break
		}
		included = append(included, p)
		used += cost
	}
	return included, used
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
