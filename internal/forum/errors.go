package forum

import "errors"

var (
	// ErrFatalConfig marks configuration problems that make crawling impossible.
	ErrFatalConfig = errors.New("fatal configuration error")
	// ErrFatalFetch is returned by a Fetcher when the fetch layer cannot continue at all.
	ErrFatalFetch = errors.New("fatal fetch error")
	// ErrMalformedDocument reports a page without the expected structural markers.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrSinkFailure wraps errors returned by sink adapters.
	ErrSinkFailure = errors.New("sink failure")
)
