package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/switchboard/pkg/models"
)

func TestMergeAveragesConfidenceAndJoinsSources(t *testing.T) {
	primary := &models.QueryResponse{
		Type: models.ResponseData,
		Data: &models.TablePayload{},
		Metadata: models.ResponseMetadata{
			Source:         "database",
			Confidence:     0.4,
			ProcessingTime: 10,
			RowCount:       models.IntPtr(2),
		},
	}
	secondary := &models.QueryResponse{
		Type: models.ResponseContent,
		Data: &models.PassagePayload{},
		Metadata: models.ResponseMetadata{
			Source:         "retrieval",
			Confidence:     0.6,
			ProcessingTime: 30,
			TokenCount:     models.IntPtr(45),
		},
	}

	merged := Merge(primary, secondary)

	assert.Equal(t, models.ResponseHybrid, merged.Type)
	assert.Equal(t, "database+retrieval", merged.Metadata.Source)
	assert.InDelta(t, 0.5, merged.Metadata.Confidence, 1e-9)
	assert.EqualValues(t, 40, merged.Metadata.ProcessingTime)

	payload, ok := merged.Data.(*models.MergedPayload)
	require.True(t, ok)
	assert.True(t, payload.Merged)
	assert.Same(t, primary, payload.Primary)
	assert.Same(t, secondary, payload.Secondary)
}

func TestMergeCarriesLoneCounts(t *testing.T) {
	primary := &models.QueryResponse{Metadata: models.ResponseMetadata{Source: "database", RowCount: models.IntPtr(7)}}
	secondary := &models.QueryResponse{Metadata: models.ResponseMetadata{Source: "retrieval", TokenCount: models.IntPtr(120)}}

	merged := Merge(primary, secondary)

	require.NotNil(t, merged.Metadata.RowCount)
	assert.Equal(t, 7, *merged.Metadata.RowCount)
	require.NotNil(t, merged.Metadata.TokenCount)
	assert.Equal(t, 120, *merged.Metadata.TokenCount)
}

func TestMergeSumsMatchingCounts(t *testing.T) {
	primary := &models.QueryResponse{Metadata: models.ResponseMetadata{Source: "database", RowCount: models.IntPtr(3)}}
	secondary := &models.QueryResponse{Metadata: models.ResponseMetadata{Source: "database", RowCount: models.IntPtr(4)}}

	merged := Merge(primary, secondary)

	require.NotNil(t, merged.Metadata.RowCount)
	assert.Equal(t, 7, *merged.Metadata.RowCount)
	assert.Nil(t, merged.Metadata.TokenCount)
}

func TestMergeOfEmptyResultsKeepsZeroCounts(t *testing.T) {
	primary := &models.QueryResponse{Metadata: models.ResponseMetadata{Source: "database", RowCount: models.IntPtr(0)}}
	secondary := &models.QueryResponse{Metadata: models.ResponseMetadata{Source: "retrieval", TokenCount: models.IntPtr(0)}}

	merged := Merge(primary, secondary)

	// A present zero means "empty but valid", which must survive the merge.
	require.NotNil(t, merged.Metadata.RowCount)
	assert.Zero(t, *merged.Metadata.RowCount)
	require.NotNil(t, merged.Metadata.TokenCount)
	assert.Zero(t, *merged.Metadata.TokenCount)
}
