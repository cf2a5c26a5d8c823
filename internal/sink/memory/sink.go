// Package memory contains an in-memory sink used by tests and dry runs.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("memory sink closed")

// Sink stores emitted messages for inspection.
type Sink struct {
	mu       sync.RWMutex
	messages []forum.EmittedMessage
	closed   bool
	// Fail, when set, is returned from Emit instead of recording.
	Fail error
}

// New returns a memory Sink.
func New() *Sink {
	return &Sink{}
}

// Emit records the message.
func (s *Sink) Emit(_ context.Context, msg forum.EmittedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.Fail != nil {
		return s.Fail
	}
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns the recorded emissions.
func (s *Sink) Messages() []forum.EmittedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]forum.EmittedMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Close marks the sink closed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
