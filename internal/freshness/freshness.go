// Package freshness decides whether a post is recent enough to emit.
package freshness

import (
	"time"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
)

// DefaultWindow is the trailing window used when none is configured.
const DefaultWindow = 10 * time.Minute

// IsFresh reports whether postedAt falls within [now-window, ...]. A zero
// postedAt stands for an unparsable timestamp and is never fresh.
func IsFresh(postedAt, now time.Time, window time.Duration) bool {
	if postedAt.IsZero() {
		return false
	}
	return !postedAt.Before(now.Add(-window))
}

// Filter binds a window to a clock.
type Filter struct {
	window time.Duration
	clock  forum.Clock
}

// New builds a Filter. A non-positive window falls back to DefaultWindow.
func New(window time.Duration, clock forum.Clock) *Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Filter{window: window, clock: clock}
}

// Window returns the configured window.
func (f *Filter) Window() time.Duration {
	return f.window
}

// Cutoff returns the oldest instant still considered fresh.
func (f *Filter) Cutoff() time.Time {
	return f.clock.Now().Add(-f.window)
}

// Fresh applies IsFresh against the filter's clock.
func (f *Filter) Fresh(msg forum.CandidateMessage) bool {
	return IsFresh(msg.PostedAt, f.clock.Now(), f.window)
}
