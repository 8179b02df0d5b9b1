package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/switchboard/pkg/models"
)

func tableResponse(rows int, truncated bool) *models.QueryResponse {
	result := models.TableResult{TableID: "tbl_tasks", TableName: "Tasks", Truncated: truncated}
	for i := 0; i < rows; i++ {
		result.Rows = append(result.Rows, models.Row{"Title": "Task"})
	}
	return &models.QueryResponse{
		Type:     models.ResponseData,
		Data:     &models.TablePayload{Tables: []models.TableResult{result}},
		Metadata: models.ResponseMetadata{Source: "database", Confidence: 0.92},
	}
}

func passageResponse(passages ...string) *models.QueryResponse {
	payload := &models.PassagePayload{}
	for i, content := range passages {
		payload.Passages = append(payload.Passages, models.RetrievedPassage{ID: "p1", Content: content, Score: 0.8})
		if i == 0 {
			payload.Citations = append(payload.Citations, models.Citation{PassageID: "p1", Score: 0.8})
		}
	}
	return &models.QueryResponse{
		Type:     models.ResponseContent,
		Data:     payload,
		Metadata: models.ResponseMetadata{Source: "retrieval", Confidence: 0.85},
	}
}

func structureContext() *models.QueryContext {
	return &models.QueryContext{
		Tables: []models.TableInfo{{ID: "tbl_tasks", Name: "Tasks"}},
		Pages:  []models.PageInfo{{ID: "pg_1", Title: "Meeting Notes"}},
	}
}

func blockTypes(blocks []models.Block) []models.BlockType {
	types := make([]models.BlockType, 0, len(blocks))
	for _, b := range blocks {
		types = append(types, b.Type)
	}
	return types
}

func TestStructureTableResponse(t *testing.T) {
	got := Structure(tableResponse(2, false), nil)

	require.Len(t, got.Blocks, 2)
	assert.Equal(t, models.BlockText, got.Blocks[0].Type)
	assert.Equal(t, "2 rows from Tasks.", got.Blocks[0].Content)
	assert.Equal(t, models.BlockTable, got.Blocks[1].Type)
	assert.Equal(t, "Tasks", got.Blocks[1].Content)

	result, ok := got.Blocks[1].Data.(models.TableResult)
	require.True(t, ok)
	assert.Len(t, result.Rows, 2)

	assert.InDelta(t, 0.92, got.Metadata.Confidence, 1e-9)
	assert.Equal(t, []string{"database"}, got.Metadata.DataSources)
	assert.Empty(t, got.Metadata.Suggestions)
}

func TestStructureTruncatedTableAddsCallout(t *testing.T) {
	got := Structure(tableResponse(1, true), nil)

	require.Len(t, got.Blocks, 3)
	assert.Equal(t, "1 row from Tasks.", got.Blocks[0].Content)
	assert.Equal(t, models.BlockCallout, got.Blocks[2].Type)
	assert.Contains(t, got.Blocks[2].Content, "truncated")
}

func TestStructureEmptyTableSuggestsFollowUps(t *testing.T) {
	got := Structure(tableResponse(0, false), structureContext())

	assert.Equal(t, "No rows matched.", got.Blocks[0].Content)
	require.NotEmpty(t, got.Metadata.Suggestions)
	assert.Contains(t, got.Metadata.Suggestions, "show rows from Tasks")
}

func TestStructureMultiTableSummary(t *testing.T) {
	payload := &models.TablePayload{Tables: []models.TableResult{
		{TableName: "Tasks", Rows: []models.Row{{}, {}, {}}},
		{TableName: "Projects", Rows: []models.Row{{}, {}}},
	}}
	got := Structure(&models.QueryResponse{Type: models.ResponseData, Data: payload}, nil)

	assert.Equal(t, "5 rows across 2 tables.", got.Blocks[0].Content)
	assert.Equal(t, []models.BlockType{models.BlockText, models.BlockTable, models.BlockTable}, blockTypes(got.Blocks))
}

func TestStructurePassageResponse(t *testing.T) {
	got := Structure(passageResponse("First note.", "Second note."), nil)

	require.Len(t, got.Blocks, 4)
	assert.Equal(t, "Found 2 relevant passages.", got.Blocks[0].Content)
	assert.Equal(t, "First note.", got.Blocks[1].Content)
	assert.Equal(t, "Second note.", got.Blocks[2].Content)
	assert.Equal(t, models.BlockCitations, got.Blocks[3].Type)
	assert.Equal(t, []string{"retrieval"}, got.Metadata.DataSources)
}

func TestStructureEmptyPassagesSuggestsFollowUps(t *testing.T) {
	got := Structure(passageResponse(), structureContext())

	require.Len(t, got.Blocks, 1)
	assert.Equal(t, "No matching content found.", got.Blocks[0].Content)
	assert.NotEmpty(t, got.Metadata.Suggestions)
}

func TestStructureChartGrouped(t *testing.T) {
	payload := &models.ChartPayload{
		ChartType: models.ChartBar,
		TableName: "Tasks",
		GroupBy:   "Status",
		Groups: []models.AggregateGroup{
			{Key: "pending", Count: 2},
			{Key: "in progress", Count: 1},
			{Key: "done", Count: 1},
		},
	}
	got := Structure(&models.QueryResponse{Type: models.ResponseChart, Data: payload, Metadata: models.ResponseMetadata{Source: "aggregate"}}, nil)

	require.Len(t, got.Blocks, 2)
	assert.Equal(t, "Tasks grouped by Status: 3 groups.", got.Blocks[0].Content)
	assert.Equal(t, models.BlockChart, got.Blocks[1].Type)
	assert.Same(t, payload, got.Blocks[1].Data)
}

func TestStructureChartSingleGroup(t *testing.T) {
	payload := &models.ChartPayload{
		ChartType: models.ChartTable,
		TableName: "Tasks",
		Groups: []models.AggregateGroup{{
			Count:  4,
			Values: []models.AggregateValue{{Column: "Points", Kind: models.AggSum, Value: 18}},
		}},
	}
	got := Structure(&models.QueryResponse{Type: models.ResponseChart, Data: payload}, nil)

	assert.Equal(t, "Tasks: count = 4, sum of Points = 18.", got.Blocks[0].Content)
}

func TestStructureActionAwaitingConfirmation(t *testing.T) {
	payload := &models.ActionPayload{
		Action:               models.ActionDelete,
		Target:               "old tasks",
		Description:          "Delete old tasks. This cannot be undone.",
		RequiresConfirmation: true,
	}
	got := Structure(&models.QueryResponse{Type: models.ResponseAction, Data: payload, Metadata: models.ResponseMetadata{Source: "action"}}, nil)

	require.Len(t, got.Blocks, 2)
	assert.Equal(t, models.BlockAction, got.Blocks[0].Type)
	assert.Equal(t, payload.Description, got.Blocks[0].Content)
	assert.Equal(t, models.BlockCallout, got.Blocks[1].Type)
	assert.Equal(t, "This action runs only after you confirm it.", got.Blocks[1].Content)
}

func TestStructureActionDeniedShowsReason(t *testing.T) {
	payload := &models.ActionPayload{
		Action:           models.ActionDelete,
		PermissionDenied: true,
		Reason:           "role viewer cannot delete in this workspace",
	}
	got := Structure(&models.QueryResponse{Type: models.ResponseAction, Data: payload}, nil)

	require.Len(t, got.Blocks, 2)
	assert.Equal(t, payload.Reason, got.Blocks[1].Content)
}

func TestStructureErrorResponse(t *testing.T) {
	resp := &models.QueryResponse{
		Type:     models.ResponseError,
		Data:     &models.ErrorPayload{Handler: "database", Message: "connection refused"},
		Metadata: models.ResponseMetadata{Source: "database", Error: "connection refused"},
	}
	got := Structure(resp, nil)

	require.Len(t, got.Blocks, 1)
	assert.Equal(t, models.BlockCallout, got.Blocks[0].Type)
	assert.Equal(t, "The database step failed: connection refused", got.Blocks[0].Content)
}

func TestStructureFallbackListsResources(t *testing.T) {
	resp := &models.QueryResponse{
		Type: models.ResponseFallback,
		Data: &models.FallbackPayload{
			Reason:          models.FallbackClarification,
			Message:         "Could you rephrase that?",
			Suggestions:     []string{"show rows from Tasks"},
			AvailableTables: []string{"Tasks", "Projects"},
			AvailablePages:  []string{"Meeting Notes"},
		},
		Metadata: models.ResponseMetadata{Source: "direct"},
	}
	got := Structure(resp, nil)

	require.Len(t, got.Blocks, 2)
	assert.Equal(t, "Could you rephrase that?", got.Blocks[0].Content)
	assert.Equal(t, "Tables: Tasks, Projects. Pages: Meeting Notes", got.Blocks[1].Content)
	assert.Equal(t, []string{"show rows from Tasks"}, got.Metadata.Suggestions)
}

func TestStructureMergedConcatenatesBranches(t *testing.T) {
	merged := Merge(tableResponse(1, false), passageResponse("A note."))
	got := Structure(merged, nil)

	assert.Equal(t, []models.BlockType{
		models.BlockText, models.BlockTable,
		models.BlockText, models.BlockText, models.BlockCitations,
	}, blockTypes(got.Blocks))
	assert.Equal(t, []string{"database", "retrieval"}, got.Metadata.DataSources)
}

func TestStructureHybridRendersBothSides(t *testing.T) {
	resp := &models.QueryResponse{
		Type: models.ResponseHybrid,
		Data: &models.HybridPayload{
			Database:  tableResponse(1, false),
			Retrieval: passageResponse("A note."),
		},
		Metadata: models.ResponseMetadata{Source: "hybrid"},
	}
	got := Structure(resp, nil)

	assert.Len(t, got.Blocks, 5)
	assert.Equal(t, []string{"hybrid"}, got.Metadata.DataSources)
}

func TestStructureMissingSourceYieldsEmptyList(t *testing.T) {
	got := Structure(&models.QueryResponse{Type: models.ResponseData, Data: &models.TablePayload{}}, nil)

	require.NotNil(t, got.Metadata.DataSources)
	assert.Empty(t, got.Metadata.DataSources)
}

func TestCountNoun(t *testing.T) {
	assert.Equal(t, "1 row", countNoun(1, "row"))
	assert.Equal(t, "2 rows", countNoun(2, "row"))
	assert.Equal(t, "0 rows", countNoun(0, "row"))
}
