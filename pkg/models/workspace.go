// Package models defines the shared types exchanged between the router,
// route handlers, orchestrator, and API surfaces.
package models

import "time"

// Role is the workspace role of the requesting user.
type Role string

// Workspace roles, ordered from least to most privileged.
const (
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
	RoleEditor    Role = "editor"
	RoleAdmin     Role = "admin"
	RoleOwner     Role = "owner"
)

// ColumnType describes the value kind stored in a table column.
type ColumnType string

// Column types supported by structured tables.
const (
	ColumnText        ColumnType = "text"
	ColumnNumber      ColumnType = "number"
	ColumnSelect      ColumnType = "select"
	ColumnMultiSelect ColumnType = "multi_select"
	ColumnDate        ColumnType = "date"
	ColumnCheckbox    ColumnType = "checkbox"
	ColumnPerson      ColumnType = "person"
	ColumnURL         ColumnType = "url"
)

// ColumnInfo describes one column of a structured table.
// Options carries the known choices for select/multi_select columns and is
// what lets the router turn query words like "pending" into filters.
type ColumnInfo struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Type    ColumnType `json:"type"`
	Options []string   `json:"options,omitempty"`
}

// Row is a single table row: cell values keyed by column name.
type Row map[string]any

// Table is the full structured-data result for one table.
type Table struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
	Rows    []Row        `json:"rows"`
}

// TableInfo is the lightweight table descriptor included in a QueryContext.
type TableInfo struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	ColumnCount    int          `json:"columnCount"`
	RowCount       int          `json:"rowCount"`
	Columns        []ColumnInfo `json:"columns"`
	RecentlyActive bool         `json:"recentlyActive"`
	Relevance      float64      `json:"relevance"`
}

// PageInfo is the lightweight page descriptor included in a QueryContext.
type PageInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastModified time.Time `json:"lastModified"`
	BlockCount   int       `json:"blockCount"`
	Relevance    float64   `json:"relevance"`
}

// UserInfo describes the requesting user within the workspace.
type UserInfo struct {
	ID              string            `json:"id"`
	Role            Role              `json:"role"`
	RecentResources []string          `json:"recentResources,omitempty"`
	Preferences     map[string]string `json:"preferences,omitempty"`
}

// ConversationTurn is one prior exchange carried for context.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryContext is the per-request snapshot of workspace state the router and
// handlers operate on. It is built fresh for every request and never
// persisted by the engine. History is supplied by the host application's
// context provider; the bundled stores do not track conversations.
type QueryContext struct {
	WorkspaceID string             `json:"workspaceId"`
	Tables      []TableInfo        `json:"tables"`
	Pages       []PageInfo         `json:"pages"`
	User        UserInfo           `json:"user"`
	History     []ConversationTurn `json:"history,omitempty"`
}
