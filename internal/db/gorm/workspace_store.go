// Package gorm provides GORM-based workspace storage for switchboard.
package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/switchboard/internal/db"
	"github.com/thebtf/switchboard/internal/scoring"
	"github.com/thebtf/switchboard/pkg/models"
)

// WorkspaceStore provides workspace persistence and retrieval on top of a
// connected Store.
type WorkspaceStore struct {
	store *Store
	db    *gorm.DB
	rawDB *sql.DB
}

var _ db.Store = (*WorkspaceStore)(nil)

// NewWorkspaceStore creates a new workspace store.
func NewWorkspaceStore(store *Store) *WorkspaceStore {
	return &WorkspaceStore{
		store: store,
		db:    store.DB,
		rawDB: store.RawDB(),
	}
}

// Ping reports connection health.
func (s *WorkspaceStore) Ping() error { return s.store.Ping() }

// Close closes the underlying connection pool.
func (s *WorkspaceStore) Close() error { return s.store.Close() }

// GetContext builds the per-request workspace snapshot: table descriptors
// with their column schemas, page descriptors, and the requesting user's
// role. Users without a membership row read as viewers.
func (s *WorkspaceStore) GetContext(ctx context.Context, workspaceID, userID string) (*models.QueryContext, error) {
	var ws Workspace
	if err := s.db.WithContext(ctx).First(&ws, "id = ?", workspaceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("workspace %s not found", workspaceID)
		}
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	var tables []DataTable
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("last_activity_at DESC").
		Find(&tables).Error; err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	now := time.Now()
	activeSince := now.Add(-db.RecentActivityWindow)
	decay := scoring.DefaultDecayConfig()
	tableInfos := make([]models.TableInfo, 0, len(tables))
	for _, t := range tables {
		tableInfos = append(tableInfos, models.TableInfo{
			ID:             t.ID,
			Name:           t.Name,
			ColumnCount:    len(t.Columns),
			RowCount:       t.RowCount,
			Columns:        []models.ColumnInfo(t.Columns),
			RecentlyActive: t.LastActivityAt.After(activeSince),
			Relevance:      decay.RecencyAt(t.LastActivityAt, now),
		})
	}

	var pages []Page
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("last_modified DESC").
		Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	pageInfos := make([]models.PageInfo, 0, len(pages))
	for _, p := range pages {
		pageInfos = append(pageInfos, models.PageInfo{
			ID:           p.ID,
			Title:        p.Title,
			LastModified: p.LastModified,
			BlockCount:   p.BlockCount,
			Relevance:    decay.RecencyAt(p.LastModified, now),
		})
	}

	role := models.RoleViewer
	var member WorkspaceMember
	err := s.db.WithContext(ctx).
		First(&member, "workspace_id = ? AND user_id = ?", workspaceID, userID).Error
	switch {
	case err == nil:
		role = models.Role(member.Role)
	case err == gorm.ErrRecordNotFound:
		// No membership row: viewer.
	default:
		return nil, fmt.Errorf("get member role: %w", err)
	}

	return &models.QueryContext{
		WorkspaceID: workspaceID,
		Tables:      tableInfos,
		Pages:       pageInfos,
		User: models.UserInfo{
			ID:              userID,
			Role:            role,
			RecentResources: db.RecentResources(tableInfos, pageInfos, now),
		},
	}, nil
}

// TableData returns the full table, columns and rows, scoped to the
// workspace.
func (s *WorkspaceStore) TableData(ctx context.Context, workspaceID, tableID string) (*models.Table, error) {
	var table DataTable
	if err := s.db.WithContext(ctx).
		First(&table, "id = ? AND workspace_id = ?", tableID, workspaceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("table %s not found in workspace %s", tableID, workspaceID)
		}
		return nil, fmt.Errorf("get table: %w", err)
	}

	var rows []TableRow
	if err := s.db.WithContext(ctx).
		Where("table_id = ? AND workspace_id = ?", tableID, workspaceID).
		Order("position ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}

	data := make([]models.Row, 0, len(rows))
	for _, r := range rows {
		data = append(data, models.Row(r.Cells))
	}

	return &models.Table{
		ID:      table.ID,
		Name:    table.Name,
		Columns: []models.ColumnInfo(table.Columns),
		Rows:    data,
	}, nil
}

// CreateWorkspace upserts the workspace root row.
func (s *WorkspaceStore) CreateWorkspace(ctx context.Context, id, name string) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
		}).
		Create(&Workspace{ID: id, Name: name}).Error; err != nil {
		return fmt.Errorf("upsert workspace: %w", err)
	}
	return nil
}

// DeleteWorkspace removes the workspace and everything scoped to it.
func (s *WorkspaceStore) DeleteWorkspace(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&Passage{}, &Page{}, &TableRow{}, &DataTable{}, &WorkspaceMember{},
		} {
			if err := tx.Where("workspace_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&Workspace{}, "id = ?", id).Error
	}); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}

// UpsertMember sets the user's role in the workspace.
func (s *WorkspaceStore) UpsertMember(ctx context.Context, workspaceID, userID string, role models.Role) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role"}),
		}).
		Create(&WorkspaceMember{WorkspaceID: workspaceID, UserID: userID, Role: string(role)}).Error; err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// CreateTable upserts a structured table and its column schema. Row content
// is loaded separately through ReplaceRows.
func (s *WorkspaceStore) CreateTable(ctx context.Context, workspaceID, tableID, name string, columns []models.ColumnInfo) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "columns", "last_activity_at", "updated_at"}),
		}).
		Create(&DataTable{
			ID:             tableID,
			WorkspaceID:    workspaceID,
			Name:           name,
			Columns:        models.JSONColumns(columns),
			LastActivityAt: time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("upsert table: %w", err)
	}
	return nil
}

// ReplaceRows swaps the table's rows for the given set and refreshes the
// row count and activity stamp.
func (s *WorkspaceStore) ReplaceRows(ctx context.Context, workspaceID, tableID string, rows []models.Row) error {
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("table_id = ? AND workspace_id = ?", tableID, workspaceID).
			Delete(&TableRow{}).Error; err != nil {
			return fmt.Errorf("delete existing rows: %w", err)
		}

		if len(rows) > 0 {
			records := make([]TableRow, 0, len(rows))
			for i, row := range rows {
				records = append(records, TableRow{
					TableID:     tableID,
					WorkspaceID: workspaceID,
					Position:    i,
					Cells:       models.JSONCells(row),
				})
			}
			if err := tx.Create(&records).Error; err != nil {
				return fmt.Errorf("insert rows: %w", err)
			}
		}

		return tx.Model(&DataTable{}).
			Where("id = ? AND workspace_id = ?", tableID, workspaceID).
			Updates(map[string]any{
				"row_count":        len(rows),
				"last_activity_at": time.Now(),
			}).Error
	}); err != nil {
		return fmt.Errorf("replace rows: %w", err)
	}
	return nil
}

// CreatePage upserts a page descriptor.
func (s *WorkspaceStore) CreatePage(ctx context.Context, workspaceID, pageID, title string, blockCount int) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "block_count", "last_modified"}),
		}).
		Create(&Page{
			ID:           pageID,
			WorkspaceID:  workspaceID,
			Title:        title,
			BlockCount:   blockCount,
			LastModified: time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}
