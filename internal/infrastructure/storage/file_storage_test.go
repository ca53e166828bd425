package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/domain/apperr"
)

func TestLocalFileStorage_SaveGetDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalFileStorage(dir, "/files/", zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	key := "signatures/emp/abcdef.png"
	require.NoError(t, store.Save(ctx, key, strings.NewReader("png-bytes"), "image/png"))

	_, err = os.Stat(filepath.Join(dir, "signatures", "emp", "ab", "cd", "abcdef.png"))
	require.NoError(t, err, "objects are placed under hashed directories")

	rc, contentType, err := store.Get(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, "image/png", contentType)

	url, err := store.GenerateURL(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, "/files/"+key, url)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "deleting twice is fine")

	_, _, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLocalFileStorage_DefaultContentType(t *testing.T) {
	store, err := NewLocalFileStorage(t.TempDir(), "", zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a", strings.NewReader("x"), ""))
	rc, contentType, err := store.Get(ctx, "a")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, defaultContentType, contentType)

	url, err := store.GenerateURL(ctx, "a", 0)
	require.NoError(t, err)
	assert.Equal(t, "a", url)
}

func TestLocalFileStorage_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalFileStorage(t.TempDir(), "", zap.NewNop())
	require.NoError(t, err)

	for _, key := range []string{"", "../outside.png", "../../etc/passwd"} {
		err := store.Save(context.Background(), key, strings.NewReader("x"), "")
		assert.ErrorIs(t, err, apperr.ErrValidation, key)
	}
}

func TestNewStorageFromConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blobs")
	store, err := NewStorageFromConfig(context.Background(), Config{Type: DriverLocal, LocalDir: dir}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LocalFileStorage{}, store)
	assert.DirExists(t, dir)

	_, err = NewStorageFromConfig(context.Background(), Config{Type: "ftp"}, zap.NewNop())
	assert.Error(t, err)
}
