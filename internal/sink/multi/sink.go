// Package multi fans emitted messages out to several sinks.
package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
	"github.com/JakeFAU/realtime-forum-crawler/internal/metrics"
)

// Named pairs a sink with the label used in errors and metrics.
type Named struct {
	Name string
	Sink forum.Sink
}

// Sink delivers each message to every child, in order.
type Sink struct {
	sinks []Named
}

// New builds a fan-out sink.
func New(sinks ...Named) *Sink {
	return &Sink{sinks: sinks}
}

// Emit delivers msg to all children. A failing child does not stop delivery
// to the rest; the joined error wraps forum.ErrSinkFailure.
func (s *Sink) Emit(ctx context.Context, msg forum.EmittedMessage) error {
	var errs []error
	for _, n := range s.sinks {
		if err := n.Sink.Emit(ctx, msg); err != nil {
			metrics.ObserveSinkFailure(n.Name)
			errs = append(errs, fmt.Errorf("%w: %s: %w", forum.ErrSinkFailure, n.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every child and joins their errors.
func (s *Sink) Close() error {
	var errs []error
	for _, n := range s.sinks {
		if err := n.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", n.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Len reports how many sinks are attached.
func (s *Sink) Len() int {
	return len(s.sinks)
}
