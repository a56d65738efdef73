package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalSaveOpenRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := New(context.Background(), Config{Driver: "local", Dir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	key, err := store.Save(ctx, "invoice_20240101120000.pdf", strings.NewReader("pdf-bytes"))
	require.NoError(t, err)
	require.Equal(t, "invoice_20240101120000.pdf", key)

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "pdf-bytes", string(body))

	require.NoError(t, store.Remove(ctx, key))
	_, err = store.Open(ctx, key)
	require.ErrorIs(t, err, ErrNotExist)
	require.ErrorIs(t, store.Remove(ctx, key), ErrNotExist)
}

func TestLocalSaveStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	key, err := store.Save(context.Background(), "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	require.Equal(t, "passwd", key)
	_, err = os.Stat(filepath.Join(dir, "passwd"))
	require.NoError(t, err)
}

func TestLocalSaveOverwrites(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	_, err = store.Save(ctx, "a.txt", strings.NewReader("one"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "a.txt", strings.NewReader("two"))
	require.NoError(t, err)
	rc, err := store.Open(ctx, "a.txt")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	require.Equal(t, "two", string(body))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "ftp"})
	require.Error(t, err)
}
