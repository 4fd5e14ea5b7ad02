package storage_test

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/confops/ticketd/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGet(t *testing.T) {
	t.Parallel()

	store := storage.NewStore(t.TempDir())
	content := []byte("conference badge artwork")

	digest, err := store.Put(content)
	require.NoError(t, err)
	assert.Equal(t, storage.Digest(content), digest)

	loaded, err := store.Get(digest)
	require.NoError(t, err)
	assert.Equal(t, content, loaded)
}

func TestStore_PutIsIdempotent(t *testing.T) {
	t.Parallel()

	store := storage.NewStore(t.TempDir())
	content := []byte("same bytes twice")

	first, err := store.Put(content)
	require.NoError(t, err)

	second, err := store.Put(content)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	store := storage.NewStore(t.TempDir())

	_, err := store.Get("deadbeef")
	assert.Error(t, err)
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func TestDetectMime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "image/png", storage.DetectMime(pngBytes(t, 2, 2)))
	assert.Equal(t, "image/svg+xml", storage.DetectMime([]byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`)))
	assert.Equal(t, "application/pdf", storage.DetectMime([]byte("%PDF-1.7 rest of file")))
}

func TestImageSize(t *testing.T) {
	t.Parallel()

	width, height, err := storage.ImageSize(pngBytes(t, 32, 16))
	require.NoError(t, err)
	assert.Equal(t, 32, width)
	assert.Equal(t, 16, height)

	_, _, err = storage.ImageSize([]byte("not an image"))
	assert.Error(t, err)
}

func TestMimeAllowed(t *testing.T) {
	t.Parallel()

	assert.True(t, storage.MimeAllowed(storage.FileMimes, "text/plain; charset=utf-8"))
	assert.True(t, storage.MimeAllowed([]string{"text/plain"}, "text/plain; charset=utf-8"))
	assert.False(t, storage.MimeAllowed(storage.ImageMimes, "application/pdf"))
}
