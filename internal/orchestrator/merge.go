package orchestrator

import (
	"github.com/thebtf/switchboard/pkg/models"
)

// Merge combines a low-confidence primary response with its secondary into
// one hybrid-typed response. Exactly one merge level exists: the
// sub-responses are carried as-is and never re-merged.
func Merge(primary, secondary *models.QueryResponse) *models.QueryResponse {
	return &models.QueryResponse{
		Type: models.ResponseHybrid,
		Data: &models.MergedPayload{
			Primary:   primary,
			Secondary: secondary,
			Merged:    true,
		},
		Metadata: models.ResponseMetadata{
			Source:         primary.Metadata.Source + "+" + secondary.Metadata.Source,
			Confidence:     (primary.Metadata.Confidence + secondary.Metadata.Confidence) / 2,
			ProcessingTime: primary.Metadata.ProcessingTime + secondary.Metadata.ProcessingTime,
			RowCount:       sumCounts(primary.Metadata.RowCount, secondary.Metadata.RowCount),
			TokenCount:     sumCounts(primary.Metadata.TokenCount, secondary.Metadata.TokenCount),
		},
	}
}

// sumCounts adds two optional counts, carrying a lone present value through.
func sumCounts(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return models.IntPtr(*a + *b)
	}
}
