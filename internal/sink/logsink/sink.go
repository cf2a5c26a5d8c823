// Package logsink writes emitted messages to a zap logger.
package logsink

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
)

// Sink logs every message at info level.
type Sink struct {
	logger *zap.Logger
}

// New builds a log sink. A nil logger falls back to a no-op logger.
func New(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{logger: logger.Named("sink.log")}
}

// Emit logs the message.
func (s *Sink) Emit(_ context.Context, msg forum.EmittedMessage) error {
	s.logger.Info("yielding post",
		zap.String("id", msg.ID),
		zap.String("thread_title", msg.ThreadTitle),
		zap.String("thread_date", msg.ThreadDate),
		zap.String("latest_poster", msg.LatestPoster),
		zap.String("latest_post_time", msg.LatestPostTime),
		zap.String("thread_url", msg.ThreadURL),
		zap.String("message_content", msg.MessageContent),
	)
	return nil
}

// Close flushes buffered log entries.
func (s *Sink) Close() error {
	// Sync fails on non-file outputs such as stderr on some platforms.
	_ = s.logger.Sync()
	return nil
}
