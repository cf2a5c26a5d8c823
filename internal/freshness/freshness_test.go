package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
)

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time {
	return c.now
}

func TestIsFreshBoundary(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	window := 10 * time.Minute

	require.True(t, IsFresh(now.Add(-window), now, window), "exactly now-window is fresh")
	require.False(t, IsFresh(now.Add(-window-time.Millisecond), now, window), "1ms older is stale")
	require.True(t, IsFresh(now, now, window))
	require.True(t, IsFresh(now.Add(time.Minute), now, window), "clock skew into the future still counts")
	require.False(t, IsFresh(time.Time{}, now, window), "unparsable timestamps are never fresh")
}

func TestIsFreshAcrossZones(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ict := time.FixedZone("ICT", 7*60*60)
	posted := time.Date(2024, 5, 1, 16, 55, 0, 0, ict)
	require.True(t, IsFresh(posted, now, DefaultWindow))
}

func TestFilter(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f := New(0, fakeClock{now: now})
	require.Equal(t, DefaultWindow, f.Window())
	require.Equal(t, now.Add(-DefaultWindow), f.Cutoff())

	require.True(t, f.Fresh(forum.CandidateMessage{PostedAt: now.Add(-time.Minute)}))
	require.False(t, f.Fresh(forum.CandidateMessage{PostedAt: now.Add(-time.Hour)}))
	require.False(t, f.Fresh(forum.CandidateMessage{PostedLiteral: "garbage"}))
}
