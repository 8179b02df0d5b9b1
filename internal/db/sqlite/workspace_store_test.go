package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/switchboard/pkg/models"
)

func TestGetContextBuildsSnapshot(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")

	qctx, err := ws.GetContext(context.Background(), "ws_1", "user_1")
	require.NoError(t, err)

	require.Len(t, qctx.Tables, 1)
	table := qctx.Tables[0]
	assert.Equal(t, "tbl_tasks", table.ID)
	assert.Equal(t, "Tasks", table.Name)
	assert.Equal(t, 3, table.ColumnCount)
	assert.Equal(t, 3, table.RowCount)
	assert.True(t, table.RecentlyActive)
	assert.Greater(t, table.Relevance, 0.9, "freshly seeded tables carry a high recency prior")
	require.Len(t, table.Columns, 3)
	assert.Equal(t, []string{"pending", "done"}, table.Columns[1].Options)

	require.Len(t, qctx.Pages, 1)
	assert.Equal(t, "Meeting Notes", qctx.Pages[0].Title)
	assert.Equal(t, 12, qctx.Pages[0].BlockCount)
	assert.False(t, qctx.Pages[0].LastModified.IsZero())
	assert.Greater(t, qctx.Pages[0].Relevance, 0.9)

	assert.Equal(t, "user_1", qctx.User.ID)
	assert.Equal(t, models.RoleEditor, qctx.User.Role)
	assert.Equal(t, []string{"tbl_tasks", "page_notes"}, qctx.User.RecentResources)
}

func TestGetContextUnknownWorkspace(t *testing.T) {
	ws := newTestStore(t)

	_, err := ws.GetContext(context.Background(), "ws_missing", "user_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGetContextStrangerIsViewer(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")

	qctx, err := ws.GetContext(context.Background(), "ws_1", "user_unknown")
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, qctx.User.Role)
}

func TestTableDataReturnsRowsInOrder(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")

	table, err := ws.TableData(context.Background(), "ws_1", "tbl_tasks")
	require.NoError(t, err)

	assert.Equal(t, "Tasks", table.Name)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "Draft launch plan", table.Rows[0]["Name"])
	assert.Equal(t, "Ship beta", table.Rows[1]["Name"])
	assert.Equal(t, "Review pricing", table.Rows[2]["Name"])
	assert.Equal(t, float64(5), table.Rows[1]["Points"])
}

func TestTableDataMissingTable(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")

	_, err := ws.TableData(context.Background(), "ws_1", "tbl_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestTableDataScopedToWorkspace(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")
	require.NoError(t, ws.CreateWorkspace(context.Background(), "ws_2", "Other"))

	_, err := ws.TableData(context.Background(), "ws_2", "tbl_tasks")
	require.Error(t, err)
}

func TestCreateWorkspaceIsIdempotent(t *testing.T) {
	ws := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ws.CreateWorkspace(ctx, "ws_1", "First"))
	require.NoError(t, ws.CreateWorkspace(ctx, "ws_1", "Renamed"))

	var name string
	err := ws.store.QueryRowContext(ctx, "SELECT name FROM workspaces WHERE id = ?", "ws_1").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", name)

	var count int
	err = ws.store.QueryRowContext(ctx, "SELECT COUNT(*) FROM workspaces").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateTableUpsertsSchema(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")
	ctx := context.Background()

	newColumns := []models.ColumnInfo{
		{ID: "col_title", Name: "Title", Type: models.ColumnText},
	}
	require.NoError(t, ws.CreateTable(ctx, "ws_1", "tbl_tasks", "Renamed Tasks", newColumns))

	qctx, err := ws.GetContext(ctx, "ws_1", "user_1")
	require.NoError(t, err)
	require.Len(t, qctx.Tables, 1)
	assert.Equal(t, "Renamed Tasks", qctx.Tables[0].Name)
	assert.Equal(t, 1, qctx.Tables[0].ColumnCount)
	// Row count survives a schema update.
	assert.Equal(t, 3, qctx.Tables[0].RowCount)
}

func TestReplaceRowsSwapsContent(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")
	ctx := context.Background()

	require.NoError(t, ws.ReplaceRows(ctx, "ws_1", "tbl_tasks", []models.Row{
		{"Name": "Only row", "Status": "done", "Points": float64(1)},
	}))

	table, err := ws.TableData(ctx, "ws_1", "tbl_tasks")
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "Only row", table.Rows[0]["Name"])

	qctx, err := ws.GetContext(ctx, "ws_1", "user_1")
	require.NoError(t, err)
	assert.Equal(t, 1, qctx.Tables[0].RowCount)
}

func TestReplaceRowsWithEmptySetClearsTable(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")
	ctx := context.Background()

	require.NoError(t, ws.ReplaceRows(ctx, "ws_1", "tbl_tasks", nil))

	table, err := ws.TableData(ctx, "ws_1", "tbl_tasks")
	require.NoError(t, err)
	assert.Empty(t, table.Rows)

	qctx, err := ws.GetContext(ctx, "ws_1", "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0, qctx.Tables[0].RowCount)
}

func TestUpsertMemberUpdatesRole(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")
	ctx := context.Background()

	require.NoError(t, ws.UpsertMember(ctx, "ws_1", "user_1", models.RoleAdmin))

	qctx, err := ws.GetContext(ctx, "ws_1", "user_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, qctx.User.Role)
}

func TestDeleteWorkspaceRemovesEverything(t *testing.T) {
	ws := newTestStore(t)
	seedWorkspace(t, ws, "ws_1")
	ctx := context.Background()

	require.NoError(t, ws.DeleteWorkspace(ctx, "ws_1"))

	_, err := ws.GetContext(ctx, "ws_1", "user_1")
	require.Error(t, err)

	hits, err := ws.KeywordSearch(ctx, "ws_1", "roadmap", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	for _, table := range []string{"data_tables", "table_rows", "pages", "passages", "workspace_members"} {
		var count int
		err := ws.store.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		require.NoError(t, err)
		assert.Zero(t, count, "leftover rows in %s", table)
	}
}

func TestPingReportsHealth(t *testing.T) {
	ws := newTestStore(t)
	require.NoError(t, ws.Ping())
}
