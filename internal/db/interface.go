// Package db defines the storage surface shared by the PostgreSQL and
// SQLite stores. The engine consumes the narrow read-side interfaces; the
// writer side exists for workspace sync and seeding.
package db

import (
	"context"
	"time"

	"github.com/thebtf/switchboard/internal/search"
	"github.com/thebtf/switchboard/pkg/models"
)

// RecentActivityWindow is how far back a table's last activity may lie for
// the context snapshot to mark it recently active.
const RecentActivityWindow = 7 * 24 * time.Hour

// PassageRecord is one retrievable chunk handed to a store for indexing.
// Embedding may be empty when no embedding provider is configured; such
// passages are reachable through keyword search only.
type PassageRecord struct {
	ID        string
	SourceRef string
	Content   string
	Embedding []float32
}

// WorkspaceReader is the read side the engine binds to.
type WorkspaceReader interface {
	// GetContext builds the per-request workspace snapshot.
	GetContext(ctx context.Context, workspaceID, userID string) (*models.QueryContext, error)

	// TableData returns the full table, columns and rows, scoped to the
	// workspace.
	TableData(ctx context.Context, workspaceID, tableID string) (*models.Table, error)
}

// WorkspaceWriter is the admin side used by workspace sync and seeding.
// Callers supply stable ids so repeated syncs are idempotent.
type WorkspaceWriter interface {
	CreateWorkspace(ctx context.Context, id, name string) error
	DeleteWorkspace(ctx context.Context, id string) error
	UpsertMember(ctx context.Context, workspaceID, userID string, role models.Role) error
	CreateTable(ctx context.Context, workspaceID, tableID, name string, columns []models.ColumnInfo) error
	ReplaceRows(ctx context.Context, workspaceID, tableID string, rows []models.Row) error
	CreatePage(ctx context.Context, workspaceID, pageID, title string, blockCount int) error
	UpsertPassages(ctx context.Context, workspaceID string, passages []PassageRecord) error
}

// Store is the full storage surface. Both implementations also satisfy
// search.Index so retrieval can run against either backend.
type Store interface {
	WorkspaceReader
	WorkspaceWriter
	search.Index
	Ping() error
	Close() error
}

// RecentResources lists the ids of recently active tables and pages for the
// context snapshot's user info. The stores track activity per workspace, not
// per user, so every member sees the same list.
func RecentResources(tables []models.TableInfo, pages []models.PageInfo, now time.Time) []string {
	var ids []string
	for _, t := range tables {
		if t.RecentlyActive {
			ids = append(ids, t.ID)
		}
	}
	activeSince := now.Add(-RecentActivityWindow)
	for _, p := range pages {
		if p.LastModified.After(activeSince) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
