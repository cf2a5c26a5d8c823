// Package scheduler drives the poll loop: list threads, visit each one in
// activity order, filter and dedup its posts, and hand new ones to the sink.
package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
	"github.com/JakeFAU/realtime-forum-crawler/internal/freshness"
	"github.com/JakeFAU/realtime-forum-crawler/internal/id/uuid"
	"github.com/JakeFAU/realtime-forum-crawler/internal/identity"
	"github.com/JakeFAU/realtime-forum-crawler/internal/metrics"
	"github.com/JakeFAU/realtime-forum-crawler/internal/parser"
	"github.com/JakeFAU/realtime-forum-crawler/internal/sanitize"
)

const tracerName = "github.com/JakeFAU/realtime-forum-crawler/internal/scheduler"

// Cycle outcomes recorded in CycleStats and metrics.
const (
	OutcomeCompleted     = "completed"
	OutcomeListingFailed = "listing_failed"
	OutcomeMalformed     = "malformed_listing"
	OutcomeCanceled      = "canceled"
	OutcomeFatal         = "fatal"
)

// Thread visit outcomes.
const (
	visitEmitted     = "emitted"
	visitNothingNew  = "nothing_new"
	visitFetchFailed = "fetch_failed"
	visitMalformed   = "malformed"
)

// Page kinds passed to the fetcher and archiver.
const (
	kindListing = "listing"
	kindThread  = "thread"
)

// Clock supplies time and cancellable sleeps.
type Clock interface {
	forum.Clock
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator creates cycle ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Config holds loop timing.
type Config struct {
	StartURL     string
	EmitDelay    time.Duration
	IdleDelay    time.Duration
	PollInterval time.Duration
}

// Scheduler owns State and runs the crawl loop on a single goroutine.
type Scheduler struct {
	cfg      Config
	fetcher  forum.Fetcher
	sink     forum.Sink
	filter   *freshness.Filter
	state    *State
	clock    Clock
	archiver forum.PageArchiver
	ids      IDGenerator
	logger   *zap.Logger
}

// New constructs a Scheduler. archiver and ids may be nil.
func New(
	cfg Config,
	fetcher forum.Fetcher,
	sink forum.Sink,
	filter *freshness.Filter,
	state *State,
	clock Clock,
	archiver forum.PageArchiver,
	ids IDGenerator,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ids == nil {
		ids = uuid.New()
	}
	return &Scheduler{
		cfg:      cfg,
		fetcher:  fetcher,
		sink:     sink,
		filter:   filter,
		state:    state,
		clock:    clock,
		archiver: archiver,
		ids:      ids,
		logger:   logger.Named("scheduler"),
	}
}

// State exposes the scheduler's state for read-only inspection.
func (s *Scheduler) State() *State {
	return s.state
}

// Run polls until ctx is done. It returns nil on shutdown and an error only
// for conditions that make further polling pointless.
func (s *Scheduler) Run(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.StartURL) == "" {
		return fmt.Errorf("%w: start URL is required", forum.ErrFatalConfig)
	}
	s.logger.Info("crawl loop starting",
		zap.String("start_url", s.cfg.StartURL),
		zap.Duration("freshness_window", s.filter.Window()),
		zap.Duration("poll_interval", s.cfg.PollInterval),
		zap.Duration("ledger_retention", s.state.Ledger.Retention()),
	)
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			s.logger.Info("crawl loop stopped")
			return nil
		}
		if err := s.clock.Sleep(ctx, s.cfg.PollInterval); err != nil {
			s.logger.Info("crawl loop stopped")
			return nil
		}
	}
}

// RunCycle performs one listing pass. Only fatal fetch errors are returned;
// everything else is logged, counted and reflected in the stats.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleStats, error) {
	stats := CycleStats{ID: s.newCycleID(), StartedAt: s.clock.Now()}
	logger := s.logger.With(zap.String("cycle_id", stats.ID))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "scheduler.cycle",
		trace.WithAttributes(attribute.String("cycle.id", stats.ID), attribute.String("start_url", s.cfg.StartURL)))
	defer span.End()

	if wm := s.state.Watermark(); !wm.IsZero() {
		logger.Info("resuming from watermark", zap.Time("watermark", wm))
	}
	if pruned := s.state.Ledger.Prune(stats.StartedAt); pruned > 0 {
		logger.Debug("pruned ledger", zap.Int("removed", pruned))
	}

	threads, outcome, err := s.listThreads(ctx, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing fetch failed fatally")
		return s.finish(span, logger, stats, OutcomeFatal), err
	}
	if outcome != "" {
		return s.finish(span, logger, stats, outcome), nil
	}
	stats.Threads = len(threads)

	for _, thread := range threads {
		if ctx.Err() != nil {
			return s.finish(span, logger, stats, OutcomeCanceled), nil
		}
		emitted, err := s.visitThread(ctx, logger, thread, &stats)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "thread fetch failed fatally")
			return s.finish(span, logger, stats, OutcomeFatal), err
		}
		if emitted == 0 {
			if err := s.clock.Sleep(ctx, s.cfg.IdleDelay); err != nil {
				return s.finish(span, logger, stats, OutcomeCanceled), nil
			}
		}
	}
	return s.finish(span, logger, stats, OutcomeCompleted), nil
}

func (s *Scheduler) finish(span trace.Span, logger *zap.Logger, stats CycleStats, outcome string) CycleStats {
	stats.Outcome = outcome
	stats.FinishedAt = s.clock.Now()
	span.SetAttributes(
		attribute.String("cycle.outcome", outcome),
		attribute.Int("cycle.threads", stats.Threads),
		attribute.Int("cycle.emitted", stats.Emitted),
	)
	s.state.finishCycle(stats)
	metrics.ObserveCycle(outcome)
	metrics.SetLedgerSize(s.state.Ledger.Len())
	logger.Info("poll cycle finished",
		zap.String("outcome", outcome),
		zap.Int("threads", stats.Threads),
		zap.Int("threads_failed", stats.ThreadsFailed),
		zap.Int("candidates", stats.Candidates),
		zap.Int("emitted", stats.Emitted),
		zap.Int("ledger_size", s.state.Ledger.Len()),
	)
	return stats
}

// listThreads returns a non-empty outcome when the cycle should end early.
func (s *Scheduler) listThreads(ctx context.Context, logger *zap.Logger) ([]forum.ThreadSummary, string, error) {
	resp, err := s.fetch(ctx, kindListing, s.cfg.StartURL)
	if err != nil {
		if errors.Is(err, forum.ErrFatalFetch) {
			logger.Error("listing fetch failed fatally", zap.String("url", s.cfg.StartURL), zap.Error(err))
			return nil, "", err
		}
		if ctx.Err() != nil {
			return nil, OutcomeCanceled, nil
		}
		logger.Warn("listing fetch failed", zap.String("url", s.cfg.StartURL), zap.Error(err))
		return nil, OutcomeListingFailed, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		logger.Debug("listing not parseable", zap.Error(err))
		return nil, OutcomeMalformed, nil
	}
	base, err := url.Parse(firstNonEmpty(resp.URL, s.cfg.StartURL))
	if err != nil {
		logger.Debug("listing url not parseable", zap.Error(err))
		return nil, OutcomeMalformed, nil
	}
	threads, err := parser.ListThreadsChecked(doc, base)
	if err != nil {
		logger.Debug("listing malformed", zap.Error(err))
		return nil, OutcomeMalformed, nil
	}
	logger.Debug("listed threads", zap.Int("count", len(threads)))
	return threads, "", nil
}

// visitThread fetches one thread and emits its new posts. It returns the
// number of accepted messages.
func (s *Scheduler) visitThread(
	ctx context.Context,
	logger *zap.Logger,
	thread forum.ThreadSummary,
	stats *CycleStats,
) (int, error) {
	logger = logger.With(zap.String("thread_id", thread.ThreadID), zap.String("thread_url", thread.URL))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scheduler.visit_thread",
		trace.WithAttributes(attribute.String("thread.id", thread.ThreadID), attribute.String("thread.url", thread.URL)))
	defer span.End()

	resp, err := s.fetch(ctx, kindThread, thread.URL)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, forum.ErrFatalFetch) {
			span.SetStatus(codes.Error, "fatal fetch")
			logger.Error("thread fetch failed fatally", zap.Error(err))
			return 0, err
		}
		stats.ThreadsFailed++
		metrics.ObserveThreadVisit(visitFetchFailed)
		if ctx.Err() == nil {
			logger.Warn("thread fetch failed", zap.Error(err))
		}
		return 0, nil
	}

	threadURL := firstNonEmpty(resp.URL, thread.URL)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		metrics.ObserveThreadVisit(visitMalformed)
		logger.Debug("thread page not parseable", zap.Error(err))
		return 0, nil
	}
	candidates, err := parser.ExtractMessagesChecked(doc, threadURL)
	if err != nil {
		metrics.ObserveThreadVisit(visitMalformed)
		logger.Debug("thread page malformed", zap.Error(err))
		return 0, nil
	}
	stats.Candidates += len(candidates)

	accepted := s.accept(candidates, thread, threadURL, stats)
	if len(accepted) == 0 {
		metrics.ObserveThreadVisit(visitNothingNew)
		logger.Info("no new messages found", zap.Duration("idle_delay", s.cfg.IdleDelay))
		return 0, nil
	}
	metrics.ObserveThreadVisit(visitEmitted)
	span.SetAttributes(attribute.Int("thread.accepted", len(accepted)))
	s.emit(ctx, logger, accepted, stats)
	return len(accepted), nil
}

type acceptedMessage struct {
	msg      forum.EmittedMessage
	postedAt time.Time
}

// accept filters candidates without touching the ledger.
func (s *Scheduler) accept(
	candidates []forum.CandidateMessage,
	thread forum.ThreadSummary,
	threadURL string,
	stats *CycleStats,
) []acceptedMessage {
	var accepted []acceptedMessage
	for _, c := range candidates {
		if !s.filter.Fresh(c) {
			stats.Stale++
			metrics.ObserveRejected(metrics.RejectStale)
			continue
		}
		id, ok := identity.Generate(threadURL, c.PostedLiteral)
		if !ok {
			stats.NoID++
			metrics.ObserveRejected(metrics.RejectNoID)
			continue
		}
		if s.state.Ledger.Contains(id) {
			stats.Duplicates++
			metrics.ObserveRejected(metrics.RejectDuplicate)
			continue
		}
		accepted = append(accepted, acceptedMessage{
			postedAt: c.PostedAt,
			msg: forum.EmittedMessage{
				ID:             id,
				ThreadTitle:    thread.Title,
				ThreadDate:     thread.DateLiteral,
				LatestPoster:   c.AuthorName,
				LatestPostTime: c.PostedLiteral,
				MessageContent: sanitize.Clean(c.RawText),
				ThreadURL:      threadURL,
			},
		})
	}
	return accepted
}

// emit records and delivers accepted messages in order. Once started it
// finishes the whole batch even if ctx is canceled, skipping only the pacing
// delays, so nothing extracted is lost between ledger and sink.
func (s *Scheduler) emit(ctx context.Context, logger *zap.Logger, accepted []acceptedMessage, stats *CycleStats) {
	emitCtx := context.WithoutCancel(ctx)
	for i, a := range accepted {
		if !s.state.Ledger.TryAdd(a.msg.ID) {
			stats.Duplicates++
			metrics.ObserveRejected(metrics.RejectDuplicate)
			continue
		}
		if err := s.sink.Emit(emitCtx, a.msg); err != nil {
			// The id stays in the ledger; the message is not retried.
			stats.SinkFailures++
			trace.SpanFromContext(ctx).RecordError(err)
			logger.Error("sink emit failed", zap.String("id", a.msg.ID), zap.Error(err))
		} else {
			stats.Emitted++
			metrics.ObserveEmitted()
			s.state.advance(a.postedAt)
			logger.Info("yielding post",
				zap.String("id", a.msg.ID),
				zap.String("thread_title", a.msg.ThreadTitle),
				zap.String("latest_poster", a.msg.LatestPoster),
			)
		}
		if i == len(accepted)-1 || ctx.Err() != nil {
			continue
		}
		_ = s.clock.Sleep(ctx, s.cfg.EmitDelay)
	}
}

func (s *Scheduler) fetch(ctx context.Context, kind, target string) (forum.FetchResponse, error) {
	resp, err := s.fetcher.Fetch(ctx, forum.FetchRequest{URL: target, Kind: kind})
	if err != nil {
		return forum.FetchResponse{}, fmt.Errorf("fetch %s %s: %w", kind, target, err)
	}
	if s.archiver != nil {
		if uri, err := s.archiver.Archive(ctx, kind, resp); err != nil {
			s.logger.Warn("archive page failed", zap.String("url", target), zap.Error(err))
		} else {
			s.logger.Debug("archived page", zap.String("url", target), zap.String("uri", uri))
		}
	}
	return resp, nil
}

func (s *Scheduler) newCycleID() string {
	id, err := s.ids.NewID()
	if err != nil {
		s.logger.Warn("cycle id generation failed", zap.Error(err))
		return ""
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
