// Package logging includes tests for the zap logger helpers.
package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Development: true})
	if err != nil {
		t.Fatalf("New(dev) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected development logger to enable debug")
	}
}

// TestNewProductionLoggerWithLevel ensures the level override applies.
func TestNewProductionLoggerWithLevel(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Level: "warn"})
	if err != nil {
		t.Fatalf("New(prod) error = %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info to be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("expected warn to be enabled")
	}
}

// TestNewRejectsUnknownLevel covers level parsing errors.
func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
