package kv

import (
	"context"
	"os"
	"path"
	"testing"

	"github.com/zkiotchain/zkiot/testing/require"
)

func setupDB(t testing.TB) *Store {
	s, err := NewKVStore(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestNewKVStore_CreatesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewKVStore(context.Background(), dir)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	require.Equal(t, dir, s.DatabasePath())
	_, err = os.Stat(path.Join(dir, DatabaseFileName))
	require.NoError(t, err)
}

func TestClearDB_RemovesFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewKVStore(context.Background(), dir)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	require.NoError(t, s.ClearDB())
	if _, err := os.Stat(path.Join(dir, DatabaseFileName)); !os.IsNotExist(err) {
		t.Fatalf("database file still present after ClearDB, stat err: %v", err)
	}
}
