// Package forum defines the data model and collaborator contracts shared by
// the crawl pipeline.
package forum

import (
	"net/http"
	"time"
)

// ThreadSummary is one thread row parsed from the listing page.
type ThreadSummary struct {
	ThreadID string
	Title    string
	// URL is the absolute "latest post" link for the thread.
	URL string
	// DateLiteral is the raw datetime attribute shown on the listing.
	DateLiteral string
	// LatestActivity is nil when the listing carried no parseable timestamp.
	LatestActivity *time.Time
}

// CandidateMessage is a post found on a thread page before any filtering.
type CandidateMessage struct {
	ThreadID   string
	AuthorName string
	// PostedAt is the zero time when PostedLiteral could not be parsed.
	PostedAt      time.Time
	PostedLiteral string
	RawText       string
	ThreadURL     string
}

// EmittedMessage is the record handed to a Sink.
type EmittedMessage struct {
	ID             string `json:"id"`
	ThreadTitle    string `json:"thread_title"`
	ThreadDate     string `json:"thread_date"`
	LatestPoster   string `json:"latest_poster"`
	LatestPostTime string `json:"latest_post_time"`
	MessageContent string `json:"message_content"`
	ThreadURL      string `json:"thread_url"`
}

// FetchRequest captures everything needed to fetch a page.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// Kind names the page role ("listing", "thread") for metrics and archives.
	Kind string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
