package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-lab/internal/config"
	"edge-lab/internal/storage/memory"
	"edge-lab/internal/storage/sqlite"
)

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), config.StorageConfig{Backend: config.BackendMemory}, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &memory.CandidateStore{}, s.Candidates)
	assert.IsType(t, &memory.GenerationRunStore{}, s.Runs)
}

func TestOpen_MemoryWithJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(context.Background(), config.StorageConfig{
		Backend:    config.BackendMemory,
		SQLitePath: path,
	}, nil)
	require.NoError(t, err)

	assert.IsType(t, &sqlite.Journal{}, s.Runs)
	assert.IsType(t, &sqlite.Journal{}, s.Audit)
	assert.IsType(t, &memory.HashIndex{}, s.Index)

	require.NoError(t, s.Close())
	// Close is idempotent.
	require.NoError(t, s.Close())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Backend: "cassandra"}, nil)
	assert.Error(t, err)
}
