// Package main runs the forum crawler.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-forum-crawler/internal/api"
	"github.com/JakeFAU/realtime-forum-crawler/internal/clock/system"
	"github.com/JakeFAU/realtime-forum-crawler/internal/config"
	collyfetcher "github.com/JakeFAU/realtime-forum-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
	"github.com/JakeFAU/realtime-forum-crawler/internal/freshness"
	"github.com/JakeFAU/realtime-forum-crawler/internal/id/uuid"
	"github.com/JakeFAU/realtime-forum-crawler/internal/ledger"
	"github.com/JakeFAU/realtime-forum-crawler/internal/logging"
	"github.com/JakeFAU/realtime-forum-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-forum-crawler/internal/scheduler"
	"github.com/JakeFAU/realtime-forum-crawler/internal/telemetry"
)

const serviceName = "forumcrawler"

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, forum.ErrFatalConfig) {
			fmt.Fprintf(os.Stderr, "fatal configuration error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		}
		return 1
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		// Sync fails on non-file outputs such as stderr on some platforms.
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		logger.Error("tracer init failed", zap.Error(err))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	clock := system.New()
	sink, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		logger.Error("sink init failed", zap.Error(err))
		return 1
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("sink close failed", zap.Error(err))
		}
	}()

	archiver, closeArchive, err := buildArchiver(ctx, cfg, clock)
	if err != nil {
		logger.Error("archive init failed", zap.Error(err))
		return 1
	}
	defer closeArchive()

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		RespectRobots:  !cfg.Crawler.IgnoreRobots,
		Timeout:        cfg.FetchTimeout(),
		MaxRetries:     cfg.HTTP.MaxRetries,
		BackoffInitial: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		Limiter:        ratelimit.New(ratelimit.Config{DefaultRPS: cfg.HTTP.RequestsPerSecond, DefaultBurst: 1}),
	})

	state := scheduler.NewState(ledger.New(clock, ledger.WithRetention(cfg.Ledger.Retention)))
	sched := scheduler.New(
		scheduler.Config{
			StartURL:     cfg.Crawler.StartURL,
			EmitDelay:    cfg.Crawler.EmitDelay,
			IdleDelay:    cfg.Crawler.IdleDelay,
			PollInterval: cfg.Crawler.PollInterval,
		},
		fetcher,
		sink,
		freshness.New(cfg.Crawler.FreshnessWindow, clock),
		state,
		clock,
		archiver,
		uuid.New(),
		logger,
	)

	var srv *http.Server
	if cfg.Server.Port > 0 {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewServer(state, logger).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http server started", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	exitCode := 0
	if err := sched.Run(ctx); err != nil {
		logger.Error("crawl loop failed", zap.Error(err))
		exitCode = 1
	}

	logger.Info("shutdown initiated")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}
	logger.Info("shutdown complete", zap.Int("ledger_size", state.Ledger.Len()))
	return exitCode
}
