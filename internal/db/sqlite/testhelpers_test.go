package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thebtf/switchboard/internal/db"
	"github.com/thebtf/switchboard/pkg/models"
)

// newTestStore creates an in-memory workspace store with migrations applied.
func newTestStore(t *testing.T) *WorkspaceStore {
	t.Helper()

	store, err := NewStore(StoreConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewWorkspaceStore(store)
}

// seedWorkspace loads the standard fixture: one table with three rows, one
// page, two embedded passages and one keyword-only passage.
func seedWorkspace(t *testing.T, ws *WorkspaceStore, workspaceID string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, ws.CreateWorkspace(ctx, workspaceID, "Acme"))
	require.NoError(t, ws.UpsertMember(ctx, workspaceID, "user_1", models.RoleEditor))

	columns := []models.ColumnInfo{
		{ID: "col_name", Name: "Name", Type: models.ColumnText},
		{ID: "col_status", Name: "Status", Type: models.ColumnSelect, Options: []string{"pending", "done"}},
		{ID: "col_points", Name: "Points", Type: models.ColumnNumber},
	}
	require.NoError(t, ws.CreateTable(ctx, workspaceID, "tbl_tasks", "Tasks", columns))
	rows := []models.Row{
		{"Name": "Draft launch plan", "Status": "pending", "Points": float64(3)},
		{"Name": "Ship beta", "Status": "done", "Points": float64(5)},
		{"Name": "Review pricing", "Status": "pending", "Points": float64(2)},
	}
	require.NoError(t, ws.ReplaceRows(ctx, workspaceID, "tbl_tasks", rows))

	require.NoError(t, ws.CreatePage(ctx, workspaceID, "page_notes", "Meeting Notes", 12))
	passages := []db.PassageRecord{
		{
			ID:        "psg_1",
			SourceRef: "page_notes",
			Content:   "The quarterly roadmap shifted toward platform reliability work.",
			Embedding: []float32{1, 0, 0, 0},
		},
		{
			ID:        "psg_2",
			SourceRef: "page_notes",
			Content:   "Hiring for the data team resumes next month.",
			Embedding: []float32{0, 1, 0, 0},
		},
		{
			// Keyword-only passage.
			ID:        "psg_3",
			SourceRef: "page_notes",
			Content:   "Budget approvals move to the finance council.",
		},
	}
	require.NoError(t, ws.UpsertPassages(ctx, workspaceID, passages))
}
