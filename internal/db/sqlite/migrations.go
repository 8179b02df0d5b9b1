package sqlite

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations is the list of all database migrations in order.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "workspace_core",
		SQL: `
			-- Workspaces (tenant root)
			CREATE TABLE IF NOT EXISTS workspaces (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);

			-- Membership roles; users without a row read as viewers
			CREATE TABLE IF NOT EXISTS workspace_members (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				workspace_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'viewer' CHECK(role IN ('viewer', 'commenter', 'editor', 'admin', 'owner')),
				created_at TEXT NOT NULL,
				UNIQUE(workspace_id, user_id),
				FOREIGN KEY(workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
			);

			-- Structured tables; columns holds the JSON schema the router
			-- binds filters against
			CREATE TABLE IF NOT EXISTS data_tables (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				name TEXT NOT NULL,
				columns TEXT,
				row_count INTEGER DEFAULT 0,
				last_activity_at TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				FOREIGN KEY(workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_data_tables_workspace ON data_tables(workspace_id);

			-- Table rows; cells is a JSON object keyed by column name
			CREATE TABLE IF NOT EXISTS table_rows (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				table_id TEXT NOT NULL,
				workspace_id TEXT NOT NULL,
				position INTEGER DEFAULT 0,
				cells TEXT,
				created_at TEXT NOT NULL,
				FOREIGN KEY(table_id) REFERENCES data_tables(id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_table_rows_table ON table_rows(table_id, position);
			CREATE INDEX IF NOT EXISTS idx_table_rows_workspace ON table_rows(workspace_id);

			-- Pages (free-text documents, indexed as passages)
			CREATE TABLE IF NOT EXISTS pages (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				title TEXT NOT NULL,
				block_count INTEGER DEFAULT 0,
				last_modified TEXT NOT NULL,
				created_at TEXT NOT NULL,
				FOREIGN KEY(workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_pages_workspace ON pages(workspace_id);

			-- Passages; embedding is little-endian float32, NULL when no
			-- embedder is configured
			CREATE TABLE IF NOT EXISTS passages (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				source_ref TEXT,
				content TEXT NOT NULL,
				embedding BLOB,
				created_at TEXT NOT NULL,
				FOREIGN KEY(workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_passages_workspace ON passages(workspace_id);
		`,
	},
	{
		Version: 2,
		Name:    "passages_fts",
		SQL: `
			CREATE VIRTUAL TABLE IF NOT EXISTS passages_fts USING fts5(
				content,
				content='passages',
				content_rowid='rowid'
			);

			CREATE TRIGGER IF NOT EXISTS passages_ai AFTER INSERT ON passages BEGIN
				INSERT INTO passages_fts(rowid, content)
				VALUES (new.rowid, new.content);
			END;

			CREATE TRIGGER IF NOT EXISTS passages_ad AFTER DELETE ON passages BEGIN
				INSERT INTO passages_fts(passages_fts, rowid, content)
				VALUES('delete', old.rowid, old.content);
			END;

			CREATE TRIGGER IF NOT EXISTS passages_au AFTER UPDATE ON passages BEGIN
				INSERT INTO passages_fts(passages_fts, rowid, content)
				VALUES('delete', old.rowid, old.content);
				INSERT INTO passages_fts(rowid, content)
				VALUES (new.rowid, new.content);
			END;
		`,
	},
}

// MigrationManager handles database schema migrations.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// EnsureSchemaVersionsTable creates the schema_versions table if it doesn't exist.
func (m *MigrationManager) EnsureSchemaVersionsTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			id INTEGER PRIMARY KEY,
			version INTEGER UNIQUE NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

// GetAppliedVersions returns all applied migration versions.
func (m *MigrationManager) GetAppliedVersions() (map[int]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_versions ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions[version] = true
	}
	return versions, rows.Err()
}

// ApplyMigration applies a single migration.
func (m *MigrationManager) ApplyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Execute migration SQL
	if _, err := tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("execute migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	// Record migration
	_, err = tx.Exec(
		"INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)",
		migration.Version, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// RunMigrations applies all pending migrations.
func (m *MigrationManager) RunMigrations() error {
	if err := m.EnsureSchemaVersionsTable(); err != nil {
		return fmt.Errorf("ensure schema_versions table: %w", err)
	}

	applied, err := m.GetAppliedVersions()
	if err != nil {
		return fmt.Errorf("get applied versions: %w", err)
	}

	for _, migration := range Migrations {
		if applied[migration.Version] {
			continue
		}

		if err := m.ApplyMigration(migration); err != nil {
			return err
		}
	}

	return nil
}
