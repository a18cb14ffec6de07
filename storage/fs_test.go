package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decayfm/storage"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "tracks/song.json", []byte(`{"a":1}`), "application/json"))

	data, err := s.Get(ctx, "tracks/song.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	ok, err := s.Exists(ctx, "tracks/song.json")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "tracks/other.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFSStoreGetMissing(t *testing.T) {
	s, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "tracks/nope.json")
	assert.ErrorIs(t, err, storage.ErrNotExist)
}

func TestFSStoreOverwriteIsAtomicReplace(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := storage.NewFSStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "k", []byte("first"), "text/plain"))
	require.NoError(t, s.Put(ctx, "k", []byte("second version"), "text/plain"))

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second version", string(data))

	// No temp files left behind after the rename commit.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".blob-")
	}
}

func TestFSStoreList(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "tracks/b.json", []byte("b"), ""))
	require.NoError(t, s.Put(ctx, "tracks/a.json", []byte("a"), ""))
	require.NoError(t, s.Put(ctx, "waveforms/a.json", []byte("w"), ""))

	keys, err := s.List(ctx, "tracks/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tracks/a.json", "tracks/b.json"}, keys)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	s, err := storage.NewFSStore(filepath.Join(root, "blobs"))
	require.NoError(t, err)

	err = s.Put(context.Background(), "../escape.json", []byte("x"), "")
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(root, "escape.json"))
	assert.True(t, os.IsNotExist(statErr))
}
