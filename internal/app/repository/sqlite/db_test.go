package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository/storetest"
)

func TestSQLiteJobStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.JobStore {
		path := filepath.Join(t.TempDir(), "data", "jobs.db")
		store, err := Open(context.Background(), path)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")

	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.Ping(context.Background()))
	require.NoError(t, second.Close())
}
