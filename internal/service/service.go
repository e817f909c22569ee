// Package service ties the live stream, the REST fallback and the indicator
// engine together and serves results over HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"signalbot/internal/indicator"
	"signalbot/internal/logger"
	"signalbot/internal/metrics"
	"signalbot/internal/model"
	"signalbot/internal/store/sqlite"
	"signalbot/internal/stream"
	"signalbot/internal/trace"
)

// Result sources.
const (
	SourceLive     = "live"
	SourceFallback = "fallback"
)

const sinkTimeout = 2 * time.Second

// ResultPublisher receives every computed result set.
type ResultPublisher interface {
	Publish(ctx context.Context, rs *indicator.ResultSet) error
}

// ResultJournal records every computed result set.
type ResultJournal interface {
	Record(ctx context.Context, rs *indicator.ResultSet) error
}

// HistoryReader serves previously journaled result sets.
type HistoryReader interface {
	Recent(ctx context.Context, key model.Key, limit int) ([]indicator.ResultSet, error)
}

// TickerSource serves the rolling 24h summary of a symbol.
type TickerSource interface {
	Ticker(ctx context.Context, symbol string) (model.Ticker, error)
}

type pruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}

type candleArchiver interface {
	RunCandles(ctx context.Context, ch <-chan sqlite.ArchivedCandle)
}

// Options are the tunables of a Service.
type Options struct {
	HTTPAddr          string
	FallbackLimit     int
	IncludeOpenCandle bool
	DefaultKey        *model.Key    // subscribed by Run when set
	JournalKeep       int           // result sets kept per key; zero disables pruning
	PruneInterval     time.Duration // zero uses 10m
}

// Deps are the collaborators of a Service. Manager and Engine are required;
// nil sinks are skipped.
type Deps struct {
	Manager   *stream.Manager
	Engine    *indicator.Engine
	Publisher ResultPublisher
	Journal   ResultJournal
	Tickers   TickerSource
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// Service answers computation requests.
type Service struct {
	opts    Options
	mgr     *stream.Manager
	engine  *indicator.Engine
	pub     ResultPublisher
	journal ResultJournal
	tickers TickerSource
	met     *metrics.Metrics
	health  *metrics.HealthStatus
	gather  prometheus.Gatherer
	log     *slog.Logger

	archive chan sqlite.ArchivedCandle
	now     func() time.Time

	// bg scopes history loads started outside a request.
	bg       context.Context
	bgCancel context.CancelFunc
	loads    sync.WaitGroup
}

// New wires a service and installs its stream callbacks on d.Manager.
func New(opts Options, d Deps) *Service {
	if opts.FallbackLimit <= 0 {
		opts.FallbackLimit = 200
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = 10 * time.Minute
	}
	if d.Metrics == nil {
		reg := prometheus.NewRegistry()
		d.Metrics = metrics.NewMetrics(reg)
		if d.Gatherer == nil {
			d.Gatherer = reg
		}
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.Health == nil {
		d.Health = metrics.NewHealthStatus()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	s := &Service{
		opts:    opts,
		mgr:     d.Manager,
		engine:  d.Engine,
		pub:     d.Publisher,
		journal: d.Journal,
		tickers: d.Tickers,
		met:     d.Metrics,
		health:  d.Health,
		gather:  d.Gatherer,
		log:     d.Logger.With(slog.String("component", "service")),
		now:     time.Now,
	}
	s.bg, s.bgCancel = context.WithCancel(context.Background())
	if _, ok := d.Journal.(candleArchiver); ok {
		s.archive = make(chan sqlite.ArchivedCandle, 1024)
	}

	s.mgr.OnTick = s.onTick
	s.mgr.OnStreamEnd = func(key model.Key, _ error) {
		// A replacement stream has already reported itself.
		if _, ok := s.mgr.Active(); !ok {
			s.health.SetStream(key.String(), false)
		}
	}
	return s
}

func (s *Service) onTick(key model.Key, c model.Candle) {
	s.health.SetLastTickTime(s.now())
	if s.archive == nil || !c.Final {
		return
	}
	select {
	case s.archive <- sqlite.ArchivedCandle{Key: key, Candle: c}:
	default:
		s.met.SinkErrors.WithLabelValues("archive").Inc()
	}
}

// Subscribe makes key the live stream.
func (s *Service) Subscribe(key model.Key) error {
	if err := s.mgr.Subscribe(key); err != nil {
		return err
	}
	s.health.SetStream(key.String(), true)
	return nil
}

// SubscribeAndLoad subscribes key and loads its REST history in the
// background, so the buffer is full before the first request arrives.
// A failed load is retried by the next Compute.
func (s *Service) SubscribeAndLoad(key model.Key) error {
	if err := s.Subscribe(key); err != nil {
		return err
	}
	s.loads.Add(1)
	go func() {
		defer s.loads.Done()
		if _, err := s.mgr.SnapshotFallback(s.bg, key, s.opts.FallbackLimit); err != nil {
			s.log.Warn("history load failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Compute returns the indicator result set for key. It subscribes key if it
// is not the live stream and reads the live buffer. REST history is fetched
// when the buffer is empty or the live stream has not had its history put
// behind it yet; if that fetch fails, live candles alone answer. Sink
// failures are logged and counted but never fail the request.
func (s *Service) Compute(ctx context.Context, key model.Key) (*indicator.ResultSet, error) {
	ctx, span := trace.StartSpan(ctx, "service.Compute")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", key.Symbol), attribute.String("interval", key.Interval))

	if logger.TraceID(ctx) == "" {
		ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(key.String()))
	}
	log := logger.FromContext(ctx, s.log).With(slog.String("key", key.String()))

	if !s.mgr.IsActive(key) {
		err := s.Subscribe(key)
		switch {
		case errors.Is(err, stream.ErrNoFeed):
			log.Debug("no live feed, using history only")
		case err != nil:
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("service: compute %s: %w", key, err)
		}
	}

	snap, _ := s.mgr.Snapshot(key)
	source := SourceLive
	if snap.Len() == 0 || s.mgr.NeedsHistory(key) {
		fb, err := s.mgr.SnapshotFallback(ctx, key, s.opts.FallbackLimit)
		switch {
		case err == nil:
			snap, source = fb, SourceFallback
		case snap.Len() > 0:
			span.RecordError(err)
			log.Warn("history backfill failed, using live candles", slog.String("error", err.Error()))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn("history fallback failed", slog.String("error", err.Error()))
			return nil, err
		}
	}
	if !s.opts.IncludeOpenCandle {
		snap = snap.ClosedOnly()
	}

	start := time.Now()
	rs := s.engine.Compute(key, snap.Candles)
	rs.Version = snap.Version
	rs.Source = source
	s.met.ComputeDur.Observe(time.Since(start).Seconds())
	s.met.ComputeTotal.WithLabelValues(source).Inc()
	span.SetAttributes(attribute.Int("candles", rs.Candles), attribute.String("source", source))

	s.sink(ctx, log, rs)

	log.Info("computed", slog.String("id", rs.ID), slog.Int("candles", rs.Candles),
		slog.String("source", source), slog.Duration("took", time.Since(start)))
	return rs, nil
}

// sink writes rs to the configured publisher and journal.
func (s *Service) sink(ctx context.Context, log *slog.Logger, rs *indicator.ResultSet) {
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if s.pub != nil {
		start := time.Now()
		err := s.pub.Publish(ctx, rs)
		s.met.RedisWriteDur.Observe(time.Since(start).Seconds())
		if err != nil {
			s.met.SinkErrors.WithLabelValues("redis").Inc()
			log.Warn("publish failed", slog.String("error", err.Error()))
		}
	}
	if s.journal != nil {
		start := time.Now()
		err := s.journal.Record(ctx, rs)
		s.met.SQLiteCommitDur.Observe(time.Since(start).Seconds())
		if err != nil {
			s.met.SinkErrors.WithLabelValues("sqlite").Inc()
			log.Warn("journal failed", slog.String("error", err.Error()))
		}
	}
}

// History returns journaled result sets for key, newest first.
func (s *Service) History(ctx context.Context, key model.Key, limit int) ([]indicator.ResultSet, error) {
	h, ok := s.journal.(HistoryReader)
	if !ok {
		return nil, ErrNoJournal
	}
	return h.Recent(ctx, key, limit)
}

// ErrNoJournal is returned by History when no journal is configured.
var ErrNoJournal = errors.New("service: no journal configured")

var (
	// ErrNoTicker is returned by Ticker when no ticker source is configured.
	ErrNoTicker = errors.New("service: no ticker source configured")
	// ErrTicker wraps failures of the ticker source.
	ErrTicker = errors.New("service: ticker unavailable")
)

// Ticker returns the 24h summary for symbol.
func (s *Service) Ticker(ctx context.Context, symbol string) (model.Ticker, error) {
	sym, err := model.ParseSymbol(symbol)
	if err != nil {
		return model.Ticker{}, err
	}
	if s.tickers == nil {
		return model.Ticker{}, ErrNoTicker
	}
	t, err := s.tickers.Ticker(ctx, sym)
	if err != nil {
		s.log.Warn("ticker failed", slog.String("symbol", sym), slog.String("error", err.Error()))
		return model.Ticker{}, fmt.Errorf("%w: %v", ErrTicker, err)
	}
	return t, nil
}

// Handler returns the HTTP routes.
func (s *Service) Handler() http.Handler {
	return s.routes()
}

// Run starts the optional startup subscription, the background loops and
// the HTTP server, and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if k := s.opts.DefaultKey; k != nil {
		if err := s.SubscribeAndLoad(*k); err != nil {
			s.log.Warn("startup subscription failed", slog.String("key", k.String()), slog.String("error", err.Error()))
		} else {
			s.log.Info("startup subscription", slog.String("key", k.String()))
		}
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	archived := make(chan struct{})
	if a, ok := s.journal.(candleArchiver); ok {
		go func() {
			defer close(archived)
			a.RunCandles(bgCtx, s.archive)
		}()
	} else {
		close(archived)
	}
	if p, ok := s.journal.(pruner); ok && s.opts.JournalKeep > 0 {
		go s.pruneLoop(bgCtx, p)
	}

	srv := &http.Server{
		Addr:              s.opts.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", slog.String("addr", s.opts.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("service: http: %w", err)
		}
	}

	s.log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		s.log.Warn("http shutdown", slog.String("error", err.Error()))
	}
	s.bgCancel()
	s.loads.Wait()
	s.mgr.Close()
	bgCancel()
	<-archived
	s.log.Info("shutdown complete")
	return runErr
}

func (s *Service) pruneLoop(ctx context.Context, p pruner) {
	ticker := time.NewTicker(s.opts.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Prune(ctx, s.opts.JournalKeep)
			if err != nil {
				s.log.Warn("journal prune failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.log.Debug("journal pruned", slog.Int64("rows", n))
			}
		}
	}
}
