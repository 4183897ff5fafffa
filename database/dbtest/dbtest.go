// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tag_manager/config"
	"tag_manager/database"
)

// New returns a fresh database private to the test. Extra tag tables are
// migrated alongside the bundled ones.
func New(t testing.TB, extraTagTables ...string) *gorm.DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on",
		LogLevel: "silent",
	}
	db, err := database.Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, extraTagTables...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
