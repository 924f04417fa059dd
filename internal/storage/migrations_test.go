package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMigrations_CreatesSchema(t *testing.T) {
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db))

	for _, table := range []string{
		"schema_version", "projects", "work_items", "work_item_revisions", "sprints",
		"document_chunks", "document_chunks_fts", "preparation_runs",
	} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	for _, trigger := range []string{"document_chunks_ai", "document_chunks_ad", "document_chunks_au"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='trigger' AND name=?", trigger).Scan(&name)
		assert.NoError(t, err, "trigger %s", trigger)
	}
}

func TestMigrations_AreOrdered(t *testing.T) {
	for i := 1; i < len(AllMigrations); i++ {
		prev, cur := AllMigrations[i-1].Version, AllMigrations[i].Version
		assert.True(t, semver.MustParse(prev).LessThan(semver.MustParse(cur)), "%s must come before %s", prev, cur)
	}
	assert.Equal(t, CurrentSchemaVersion, AllMigrations[len(AllMigrations)-1].Version)
}

func TestRollbackMigration_Empty(t *testing.T) {
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	assert.Error(t, RollbackMigration(context.Background(), db))
}
