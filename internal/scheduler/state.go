package scheduler

import (
	"sync"
	"time"

	"github.com/JakeFAU/realtime-forum-crawler/internal/ledger"
)

// CycleStats summarizes one poll cycle.
type CycleStats struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Outcome       string    `json:"outcome"`
	Threads       int       `json:"threads"`
	ThreadsFailed int       `json:"threads_failed"`
	Candidates    int       `json:"candidates"`
	Stale         int       `json:"stale"`
	NoID          int       `json:"no_id"`
	Duplicates    int       `json:"duplicates"`
	Emitted       int       `json:"emitted"`
	SinkFailures  int       `json:"sink_failures"`
}

// State is everything the scheduler carries from one cycle to the next.
// Only the scheduler mutates it; readers go through Snapshot.
type State struct {
	Ledger *ledger.Ledger

	mu        sync.RWMutex
	watermark time.Time
	cycles    int
	last      CycleStats
}

// NewState wraps a ledger.
func NewState(l *ledger.Ledger) *State {
	return &State{Ledger: l}
}

// Snapshot is a read-only copy of State.
type Snapshot struct {
	Cycles     int        `json:"cycles"`
	LedgerSize int        `json:"ledger_size"`
	Watermark  *time.Time `json:"watermark,omitempty"`
	LastCycle  CycleStats `json:"last_cycle"`
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Cycles:     s.cycles,
		LedgerSize: s.Ledger.Len(),
		LastCycle:  s.last,
	}
	if !s.watermark.IsZero() {
		wm := s.watermark
		snap.Watermark = &wm
	}
	return snap
}

// Watermark returns the newest PostedAt emitted so far.
func (s *State) Watermark() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

func (s *State) advance(postedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if postedAt.After(s.watermark) {
		s.watermark = postedAt
	}
}

func (s *State) finishCycle(stats CycleStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.last = stats
}
