package main

import (
	"context"
	"fmt"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-forum-crawler/internal/archive"
	"github.com/JakeFAU/realtime-forum-crawler/internal/config"
	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
	"github.com/JakeFAU/realtime-forum-crawler/internal/sink/logsink"
	memorysink "github.com/JakeFAU/realtime-forum-crawler/internal/sink/memory"
	"github.com/JakeFAU/realtime-forum-crawler/internal/sink/multi"
	"github.com/JakeFAU/realtime-forum-crawler/internal/sink/postgres"
	pubsubsink "github.com/JakeFAU/realtime-forum-crawler/internal/sink/pubsub"
	"github.com/JakeFAU/realtime-forum-crawler/internal/sink/sqlite"
	"github.com/JakeFAU/realtime-forum-crawler/internal/storage/gcs"
	"github.com/JakeFAU/realtime-forum-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/realtime-forum-crawler/internal/storage/memory"
)

// buildSinks opens every configured sink behind a fan-out. Sinks opened
// before a failure are closed again.
func buildSinks(ctx context.Context, cfg config.Config, logger *zap.Logger) (*multi.Sink, error) {
	var named []multi.Named
	closeAll := func() {
		for _, n := range named {
			_ = n.Sink.Close()
		}
	}
	for _, kind := range cfg.Sink.Kinds {
		sink, err := openSink(ctx, kind, cfg, logger)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open %s sink: %w", kind, err)
		}
		named = append(named, multi.Named{Name: kind, Sink: sink})
		logger.Info("sink enabled", zap.String("kind", kind))
	}
	return multi.New(named...), nil
}

func openSink(ctx context.Context, kind string, cfg config.Config, logger *zap.Logger) (forum.Sink, error) {
	switch kind {
	case config.SinkLog:
		return logsink.New(logger), nil
	case config.SinkMemory:
		return memorysink.New(), nil
	case config.SinkPubSub:
		return pubsubsink.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	case config.SinkPostgres:
		return postgres.New(ctx, postgres.Config{DSN: cfg.DB.DSN, Table: cfg.DB.Table, MaxConns: cfg.DB.MaxConns})
	case config.SinkSQLite:
		return sqlite.Open(ctx, cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown sink %q", kind)
	}
}

// buildArchiver returns a nil archiver when archiving is disabled.
func buildArchiver(ctx context.Context, cfg config.Config, clock forum.Clock) (forum.PageArchiver, func(), error) {
	noop := func() {}
	if !cfg.Archive.Enabled {
		return nil, noop, nil
	}

	var (
		store   archive.BlobStore
		closeFn = noop
	)
	switch cfg.Archive.Backend {
	case config.ArchiveMemory:
		store = memorystorage.NewBlobStore()
	case config.ArchiveLocal:
		s, err := local.New(local.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return nil, noop, fmt.Errorf("local archive: %w", err)
		}
		store = s
	case config.ArchiveGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("gcs client: %w", err)
		}
		s, err := gcs.New(client, gcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("gcs archive: %w", err)
		}
		store = s
		closeFn = func() { _ = s.Close() }
	default:
		return nil, noop, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}

	a, err := archive.New(store, clock, cfg.Archive.Prefix)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	return a, closeFn, nil
}
