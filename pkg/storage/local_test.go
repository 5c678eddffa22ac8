package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_StoreAndOpen(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	content := "%PDF-1.7 fake statement"

	info, err := store.Store(ctx, "statement.pdf", "application/pdf", strings.NewReader(content))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, info.Handle)
	assert.Equal(t, "statement.pdf", info.Name)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)

	rc, err := store.Open(ctx, info.Handle)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestLocalStore_Info(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	stored, err := store.Store(ctx, "doc.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	info, err := store.Info(ctx, stored.Handle)
	require.NoError(t, err)
	assert.Equal(t, stored.Handle, info.Handle)
	assert.Equal(t, "doc.png", info.Name)
	assert.Equal(t, "image/png", info.ContentType)
}

func TestLocalStore_OpenMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(context.Background(), uuid.New())
	assert.ErrorContains(t, err, "not found")
}

func TestLocalStore_Delete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	info, err := store.Store(ctx, "doc.pdf", "application/pdf", strings.NewReader("bytes"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, info.Handle))

	_, err = store.Open(ctx, info.Handle)
	assert.Error(t, err)

	// Deleting twice is a no-op
	assert.NoError(t, store.Delete(ctx, info.Handle))
}
