package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "pages/page.html", "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://pages/page.html", uri)

	payload[0] = 'C'
	got, contentType, ok := store.Get("pages/page.html")
	require.True(t, ok)
	require.Equal(t, "content", string(got))
	require.Equal(t, "text/html", contentType)

	got[0] = 'X'
	again, _, _ := store.Get("pages/page.html")
	require.Equal(t, "content", string(again))
	require.Equal(t, []string{"pages/page.html"}, store.Keys())
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), " ", "text/html", bytes.NewReader(nil))
	require.Error(t, err)
}
