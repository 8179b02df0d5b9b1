// Package gorm provides GORM-based workspace storage for switchboard.
package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate. dims fixes
// the width of the passage embedding column and must match the embedder.
func runMigrations(db *gorm.DB, dims int) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core workspace tables
		{
			ID: "001_workspace_core",
			Migrate: func(tx *gorm.DB) error {
				// AutoMigrate creates tables with all indexes from struct tags
				if err := tx.AutoMigrate(&Workspace{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&WorkspaceMember{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&DataTable{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&TableRow{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Page{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Passage{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					"passages", "pages", "table_rows", "data_tables",
					"workspace_members", "workspaces",
				)
			},
		},

		// Migration 002: pgvector embedding column on passages
		{
			ID: "002_passage_embeddings",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`CREATE EXTENSION IF NOT EXISTS vector`,
					fmt.Sprintf(`ALTER TABLE passages ADD COLUMN IF NOT EXISTS embedding vector(%d)`, dims),
					`CREATE INDEX IF NOT EXISTS idx_passages_embedding
					 ON passages USING hnsw (embedding vector_cosine_ops)`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				// The vector extension stays installed; other schemas may use it.
				sqls := []string{
					"DROP INDEX IF EXISTS idx_passages_embedding",
					"ALTER TABLE passages DROP COLUMN IF EXISTS embedding",
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},

		// Migration 003: Generated tsvector column for keyword search
		{
			ID: "003_passage_search",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`ALTER TABLE passages ADD COLUMN IF NOT EXISTS search_vector tsvector
					 GENERATED ALWAYS AS (to_tsvector('english', content)) STORED`,
					`CREATE INDEX IF NOT EXISTS idx_passages_search
					 ON passages USING gin (search_vector)`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				sqls := []string{
					"DROP INDEX IF EXISTS idx_passages_search",
					"ALTER TABLE passages DROP COLUMN IF EXISTS search_vector",
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}
