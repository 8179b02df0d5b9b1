package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thebtf/switchboard/internal/db"
	"github.com/thebtf/switchboard/internal/scoring"
	"github.com/thebtf/switchboard/pkg/models"
)

// WorkspaceStore provides workspace persistence and retrieval on top of a
// connected Store.
type WorkspaceStore struct {
	store *Store
}

var _ db.Store = (*WorkspaceStore)(nil)

// NewWorkspaceStore creates a new workspace store.
func NewWorkspaceStore(store *Store) *WorkspaceStore {
	return &WorkspaceStore{store: store}
}

// Ping checks if the database connection is alive.
func (s *WorkspaceStore) Ping() error { return s.store.Ping() }

// Close closes the underlying store.
func (s *WorkspaceStore) Close() error { return s.store.Close() }

// GetContext builds the per-request workspace snapshot: table descriptors
// with their column schemas, page descriptors, and the requesting user's
// role. Users without a membership row read as viewers.
func (s *WorkspaceStore) GetContext(ctx context.Context, workspaceID, userID string) (*models.QueryContext, error) {
	var wsID string
	err := s.store.QueryRowContext(ctx,
		"SELECT id FROM workspaces WHERE id = ?", workspaceID).Scan(&wsID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workspace %s not found", workspaceID)
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	tables, err := s.listTables(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	pages, err := s.listPages(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	role := models.RoleViewer
	var roleStr string
	err = s.store.QueryRowContext(ctx,
		"SELECT role FROM workspace_members WHERE workspace_id = ? AND user_id = ?",
		workspaceID, userID).Scan(&roleStr)
	switch {
	case err == nil:
		role = models.Role(roleStr)
	case err == sql.ErrNoRows:
		// No membership row: viewer.
	default:
		return nil, fmt.Errorf("get member role: %w", err)
	}

	return &models.QueryContext{
		WorkspaceID: workspaceID,
		Tables:      tables,
		Pages:       pages,
		User: models.UserInfo{
			ID:              userID,
			Role:            role,
			RecentResources: db.RecentResources(tables, pages, time.Now()),
		},
	}, nil
}

func (s *WorkspaceStore) listTables(ctx context.Context, workspaceID string) ([]models.TableInfo, error) {
	rows, err := s.store.QueryContext(ctx, `
		SELECT id, name, columns, row_count, last_activity_at
		FROM data_tables
		WHERE workspace_id = ?
		ORDER BY last_activity_at DESC, id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	activeSince := now.Add(-db.RecentActivityWindow)
	decay := scoring.DefaultDecayConfig()
	infos := make([]models.TableInfo, 0)
	for rows.Next() {
		var (
			info         models.TableInfo
			columns      models.JSONColumns
			lastActivity string
		)
		if err := rows.Scan(&info.ID, &info.Name, &columns, &info.RowCount, &lastActivity); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		last := parseTime(lastActivity)
		info.Columns = []models.ColumnInfo(columns)
		info.ColumnCount = len(columns)
		info.RecentlyActive = last.After(activeSince)
		info.Relevance = decay.RecencyAt(last, now)
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}

	return infos, nil
}

func (s *WorkspaceStore) listPages(ctx context.Context, workspaceID string) ([]models.PageInfo, error) {
	rows, err := s.store.QueryContext(ctx, `
		SELECT id, title, block_count, last_modified
		FROM pages
		WHERE workspace_id = ?
		ORDER BY last_modified DESC, id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	decay := scoring.DefaultDecayConfig()
	infos := make([]models.PageInfo, 0)
	for rows.Next() {
		var (
			info         models.PageInfo
			lastModified string
		)
		if err := rows.Scan(&info.ID, &info.Title, &info.BlockCount, &lastModified); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		info.LastModified = parseTime(lastModified)
		info.Relevance = decay.RecencyAt(info.LastModified, now)
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page rows: %w", err)
	}

	return infos, nil
}

// TableData returns the full table, columns and rows, scoped to the
// workspace.
func (s *WorkspaceStore) TableData(ctx context.Context, workspaceID, tableID string) (*models.Table, error) {
	var (
		table   models.Table
		columns models.JSONColumns
	)
	err := s.store.QueryRowContext(ctx,
		"SELECT id, name, columns FROM data_tables WHERE id = ? AND workspace_id = ?",
		tableID, workspaceID).Scan(&table.ID, &table.Name, &columns)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("table %s not found in workspace %s", tableID, workspaceID)
	}
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}
	table.Columns = []models.ColumnInfo(columns)

	rows, err := s.store.QueryContext(ctx, `
		SELECT cells
		FROM table_rows
		WHERE table_id = ? AND workspace_id = ?
		ORDER BY position ASC, id ASC
	`, tableID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()

	table.Rows = make([]models.Row, 0)
	for rows.Next() {
		var cells models.JSONCells
		if err := rows.Scan(&cells); err != nil {
			return nil, fmt.Errorf("scan cells: %w", err)
		}
		table.Rows = append(table.Rows, models.Row(cells))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &table, nil
}

// CreateWorkspace upserts the workspace root row.
func (s *WorkspaceStore) CreateWorkspace(ctx context.Context, id, name string) error {
	now := nowString()
	_, err := s.store.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at
	`, id, name, now, now)
	if err != nil {
		return fmt.Errorf("upsert workspace: %w", err)
	}
	return nil
}

// DeleteWorkspace removes the workspace and everything scoped to it.
func (s *WorkspaceStore) DeleteWorkspace(ctx context.Context, id string) error {
	tx, err := s.store.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Explicit child deletes keep the FTS triggers firing regardless of the
	// foreign_keys pragma.
	stmts := []string{
		"DELETE FROM passages WHERE workspace_id = ?",
		"DELETE FROM pages WHERE workspace_id = ?",
		"DELETE FROM table_rows WHERE workspace_id = ?",
		"DELETE FROM data_tables WHERE workspace_id = ?",
		"DELETE FROM workspace_members WHERE workspace_id = ?",
		"DELETE FROM workspaces WHERE id = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete workspace: %w", err)
		}
	}

	return tx.Commit()
}

// UpsertMember sets the user's role in the workspace.
func (s *WorkspaceStore) UpsertMember(ctx context.Context, workspaceID, userID string, role models.Role) error {
	_, err := s.store.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id, user_id) DO UPDATE SET role = excluded.role
	`, workspaceID, userID, string(role), nowString())
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// CreateTable upserts a structured table and its column schema. Row content
// is loaded separately through ReplaceRows.
func (s *WorkspaceStore) CreateTable(ctx context.Context, workspaceID, tableID, name string, columns []models.ColumnInfo) error {
	now := nowString()
	_, err := s.store.ExecContext(ctx, `
		INSERT INTO data_tables (id, workspace_id, name, columns, row_count, last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			columns = excluded.columns,
			last_activity_at = excluded.last_activity_at,
			updated_at = excluded.updated_at
	`, tableID, workspaceID, name, models.JSONColumns(columns), now, now, now)
	if err != nil {
		return fmt.Errorf("upsert table: %w", err)
	}
	return nil
}

// ReplaceRows swaps the table's rows for the given set and refreshes the
// row count and activity stamp.
func (s *WorkspaceStore) ReplaceRows(ctx context.Context, workspaceID, tableID string, rows []models.Row) error {
	tx, err := s.store.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM table_rows WHERE table_id = ? AND workspace_id = ?",
		tableID, workspaceID); err != nil {
		return fmt.Errorf("delete existing rows: %w", err)
	}

	now := nowString()
	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO table_rows (table_id, workspace_id, position, cells, created_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare row insert: %w", err)
		}
		defer stmt.Close()

		for i, row := range rows {
			if _, err := stmt.ExecContext(ctx, tableID, workspaceID, i, models.JSONCells(row), now); err != nil {
				return fmt.Errorf("insert row %d: %w", i, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE data_tables SET row_count = ?, last_activity_at = ?
		WHERE id = ? AND workspace_id = ?
	`, len(rows), now, tableID, workspaceID); err != nil {
		return fmt.Errorf("update row count: %w", err)
	}

	return tx.Commit()
}

// CreatePage upserts a page descriptor.
func (s *WorkspaceStore) CreatePage(ctx context.Context, workspaceID, pageID, title string, blockCount int) error {
	now := nowString()
	_, err := s.store.ExecContext(ctx, `
		INSERT INTO pages (id, workspace_id, title, block_count, last_modified, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			block_count = excluded.block_count,
			last_modified = excluded.last_modified
	`, pageID, workspaceID, title, blockCount, now, now)
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}

// nowString formats the current time the way the schema stores timestamps.
// UTC keeps lexicographic order agreeing with chronological order.
func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// parseTime parses a stored timestamp, returning the zero time on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
