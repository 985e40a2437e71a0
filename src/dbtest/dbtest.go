// Package dbtest opens throwaway SQLite databases with the application schema.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"taskrelay/src/config"
	"taskrelay/src/db"
	"taskrelay/src/logger"
	"taskrelay/src/models"
)

// Settings returns database settings pointing at a fresh file under t.TempDir().
func Settings(t testing.TB) config.Database {
	t.Helper()
	return config.Database{
		DatabaseURL:  "sqlite:///" + filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}
}

// Open returns a manager over a new database with models.Schema applied.
// The manager is closed when the test ends.
func Open(t testing.TB) *db.Manager {
	t.Helper()

	m, err := db.Open(Settings(t), logger.NewSilentLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.Apply(context.Background(), models.Schema))
	return m
}
