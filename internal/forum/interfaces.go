package forum

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata. Errors wrapping
// ErrFatalFetch stop the crawl loop; every other error is treated as transient.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Sink receives newly observed messages and owns delivery onward.
type Sink interface {
	Emit(ctx context.Context, msg EmittedMessage) error
	Close() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// PageArchiver keeps a copy of fetched pages for later replay.
type PageArchiver interface {
	Archive(ctx context.Context, kind string, resp FetchResponse) (string, error)
}
