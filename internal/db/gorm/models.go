// Package gorm provides GORM-based workspace storage for switchboard.
package gorm

import (
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/switchboard/pkg/models"
)

// Workspace is the tenant root. Every other row carries its id.
type Workspace struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Workspace) TableName() string { return "workspaces" }

// WorkspaceMember records one user's role inside a workspace. Users without
// a row are treated as viewers.
type WorkspaceMember struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	WorkspaceID string `gorm:"type:uuid;uniqueIndex:idx_members_workspace_user,priority:1;not null"`
	UserID      string `gorm:"uniqueIndex:idx_members_workspace_user,priority:2;not null"`
	Role        string `gorm:"type:text;check:role IN ('viewer', 'commenter', 'editor', 'admin', 'owner');default:'viewer'"`
	CreatedAt   time.Time
}

func (WorkspaceMember) TableName() string { return "workspace_members" }

// DataTable is one structured table. Columns holds the ordered schema as
// JSONB, including select options the router binds filters against.
type DataTable struct {
	ID             string             `gorm:"primaryKey"`
	WorkspaceID    string             `gorm:"type:uuid;index:idx_data_tables_workspace;not null"`
	Name           string             `gorm:"not null"`
	Columns        models.JSONColumns `gorm:"type:jsonb"`
	RowCount       int                `gorm:"default:0"`
	LastActivityAt time.Time          `gorm:"index:idx_data_tables_activity,sort:desc"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (DataTable) TableName() string { return "data_tables" }

// BeforeCreate stamps activity so a freshly synced table counts as recent.
func (t *DataTable) BeforeCreate(tx *gorm.DB) error {
	if t.LastActivityAt.IsZero() {
		t.LastActivityAt = time.Now()
	}
	return nil
}

// TableRow is one row of a DataTable; Cells maps column names to values.
type TableRow struct {
	ID          int64            `gorm:"primaryKey;autoIncrement"`
	TableID     string           `gorm:"index:idx_table_rows_table,priority:1;not null"`
	WorkspaceID string           `gorm:"type:uuid;index:idx_table_rows_workspace;not null"`
	Position    int              `gorm:"index:idx_table_rows_table,priority:2;default:0"`
	Cells       models.JSONCells `gorm:"type:jsonb"`
	CreatedAt   time.Time
}

func (TableRow) TableName() string { return "table_rows" }

// Page is a free-text document whose content is indexed as passages.
type Page struct {
	ID           string    `gorm:"primaryKey"`
	WorkspaceID  string    `gorm:"type:uuid;index:idx_pages_workspace;not null"`
	Title        string    `gorm:"not null"`
	BlockCount   int       `gorm:"default:0"`
	LastModified time.Time `gorm:"index:idx_pages_modified,sort:desc"`
	CreatedAt    time.Time
}

func (Page) TableName() string { return "pages" }

// BeforeCreate stamps modification time for freshly synced pages.
func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.LastModified.IsZero() {
		p.LastModified = time.Now()
	}
	return nil
}

// Passage is one retrievable chunk of page content. Two columns live
// outside this struct, added by migrations: embedding (pgvector, written
// through raw SQL in UpsertPassages) and search_vector (a stored tsvector
// generated from content).
type Passage struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string `gorm:"type:uuid;index:idx_passages_workspace;not null"`
	SourceRef   string `gorm:"index:idx_passages_source"`
	Content     string `gorm:"type:text;not null"`
	CreatedAt   time.Time
}

func (Passage) TableName() string { return "passages" }
