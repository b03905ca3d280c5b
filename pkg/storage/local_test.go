package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoragePutGetStatDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := "tenants/t1/documents/d1/abc.pdf"
	payload := []byte("%PDF-1.7 sample")
	info, err := store.Put(ctx, key, bytes.NewReader(payload), PutOptions{Size: int64(len(payload))})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)

	rc, got, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, int64(len(payload)), got.Size)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Stat(ctx, key)
	assert.True(t, IsNotFound(err))
}

func TestLocalStorageDeleteMissingIsNoop(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Delete(context.Background(), "tenants/t1/documents/missing.pdf"))
}

func TestLocalStorageGetMissingReturnsNotFound(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, _, err = store.Get(context.Background(), "tenants/t1/documents/missing.pdf")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "../../etc/passwd", bytes.NewReader([]byte("x")), PutOptions{Size: 1})
	require.Error(t, err)
	_, err = store.Stat(context.Background(), "")
	require.Error(t, err)
}

func TestLocalStoragePutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := "tenants/t1/documents/d1/hash.txt"
	for i := 0; i < 2; i++ {
		_, err := store.Put(ctx, key, bytes.NewReader([]byte("same")), PutOptions{Size: 4})
		require.NoError(t, err)
	}
	path, err := store.resolve(key)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStorageShortWriteIsRejected(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "tenants/t1/a.txt", bytes.NewReader([]byte("abc")), PutOptions{Size: 10})
	require.Error(t, err)
	_, err = store.Stat(context.Background(), "tenants/t1/a.txt")
	assert.True(t, IsNotFound(err))
}

func TestLocalStoragePermissionErrorsAreClassified(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.MkdirAll(locked, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(locked, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Chmod(locked, 0o500))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	err = store.Delete(context.Background(), "locked/a.txt")
	require.Error(t, err)
	assert.True(t, IsPermission(err))
}
