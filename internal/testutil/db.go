// Package testutil provides shared helpers for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/datanger/workbench/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// OpenDB opens a migrated throwaway database for a test.
func OpenDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "workbench_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(zerolog.Nop()))
	return db
}
