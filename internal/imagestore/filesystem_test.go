package imagestore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSystemStore_SaveOpenDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSystemStore(dir, discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	data := pngBytes(t)

	publicPath, err := store.Save(ctx, "me.png", bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(publicPath, PathPrefix), publicPath)

	name, err := NameFromPath(publicPath)
	require.NoError(t, err)

	onDisk, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	rc, info, err := store.Open(ctx, name)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.Equal(t, "image/png", info.ContentType)

	require.NoError(t, store.Delete(ctx, publicPath))
	_, _, err = store.Open(ctx, name)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, publicPath), ErrNotFound)
}

func TestFileSystemStore_RejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSystemStore(dir, discardLogger())
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "notes.png", strings.NewReader("hello"))
	assert.ErrorIs(t, err, ErrNotAnImage)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileSystemStore_OpenRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSystemStore(filepath.Join(dir, "uploads"), discardLogger())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0o600))

	_, _, err = store.Open(context.Background(), "../secret.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}
