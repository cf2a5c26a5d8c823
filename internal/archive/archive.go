// Package archive snapshots fetched listing and thread pages into a blob
// store so parsing problems can be replayed offline.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
	"github.com/JakeFAU/realtime-forum-crawler/internal/hash/sha256"
)

// BlobStore persists one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Archiver writes pages under prefix/<yyyy-mm-dd>/<sha256>.html.
type Archiver struct {
	store  BlobStore
	hasher *sha256.Hasher
	clock  forum.Clock
	prefix string
}

// New builds an Archiver.
func New(store BlobStore, clock forum.Clock, prefix string) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &Archiver{
		store:  store,
		hasher: sha256.New(),
		clock:  clock,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Archive stores resp.Body and returns the object URI. kind ("listing" or
// "thread") is recorded in the content type parameters for later filtering.
func (a *Archiver) Archive(ctx context.Context, kind string, resp forum.FetchResponse) (string, error) {
	if len(resp.Body) == 0 {
		return "", fmt.Errorf("archive %s: empty body", kind)
	}
	key := a.ObjectPath(resp.Body)
	contentType := "text/html; charset=utf-8"
	if kind != "" {
		contentType += "; kind=" + kind
	}
	uri, err := a.store.PutObject(ctx, key, contentType, bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("archive %s %s: %w", kind, resp.URL, err)
	}
	return uri, nil
}

// ObjectPath returns the key body would be stored under today.
func (a *Archiver) ObjectPath(body []byte) string {
	day := a.clock.Now().UTC().Format(time.DateOnly)
	return path.Join(a.prefix, day, a.hasher.Hash(body)+".html")
}
