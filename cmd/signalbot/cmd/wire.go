package cmd

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"signalbot/config"
	"signalbot/internal/candlebuf"
	"signalbot/internal/indicator"
	"signalbot/internal/marketdata/rest"
	"signalbot/internal/metrics"
	redisstore "signalbot/internal/store/redis"
	"signalbot/internal/service"
	sqlitestore "signalbot/internal/store/sqlite"
	"signalbot/internal/stream"
)

// app holds the wired components and what must be closed on exit.
type app struct {
	mgr     *stream.Manager
	engine  *indicator.Engine
	met     *metrics.Metrics
	reg     *prometheus.Registry
	health  *metrics.HealthStatus
	pub     *redisstore.Publisher
	journal *sqlitestore.Journal
	tickers service.TickerSource
}

// sources picks the live feed, history fetcher and ticker source for the
// configured mode.
func sources(c *config.Config, log *slog.Logger) (stream.Feed, stream.Fetcher, service.TickerSource, error) {
	if c.FeedMode == config.FeedSim {
		sim := stream.NewSimFeed(stream.SimConfig{
			StartPrice:   c.SimStartPrice,
			TickInterval: c.SimTickInterval,
			Seed:         c.SimSeed,
		})
		return sim, sim, sim, nil
	}
	feed, err := stream.NewBinanceFeed(stream.BinanceConfig{URL: c.BinanceWSURL}, log)
	if err != nil {
		return nil, nil, nil, err
	}
	client := rest.NewClient(rest.Config{BaseURL: c.BinanceRESTURL, Timeout: c.FetchTimeout}, nil)
	return feed, client, client, nil
}

// wire builds every component. withFeed false leaves the manager without a
// live feed, so computations run on REST history only.
func wire(c *config.Config, log *slog.Logger, withFeed bool) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := &app{
		met:    metrics.NewMetrics(reg),
		reg:    reg,
		health: metrics.NewHealthStatus(),
		engine: indicator.NewEngine(indicator.DefaultCatalogue(), log),
	}

	feed, fetch, tickers, err := sources(c, log)
	if err != nil {
		return nil, err
	}
	a.tickers = tickers
	if !withFeed {
		feed = nil
	}
	a.mgr = stream.NewManager(feed, fetch, candlebuf.NewRegistry(candlebuf.Capacity), a.met, log)

	if c.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.Config{
			Addr:          c.RedisAddr,
			Password:      c.RedisPassword,
			DB:            c.RedisDB,
			LatestTTL:     c.RedisLatestTTL,
			ChannelPrefix: c.RedisChannelPrefix,
		}, log)
		if err != nil {
			log.Warn("redis disabled", slog.String("error", err.Error()))
		} else {
			a.pub = pub
			a.health.EnableRedis()
		}
	}

	if c.SQLitePath != "" {
		if dir := filepath.Dir(c.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Warn("sqlite dir", slog.String("error", err.Error()))
			}
		}
		j, err := sqlitestore.New(c.SQLitePath, log)
		if err != nil {
			log.Warn("sqlite disabled", slog.String("error", err.Error()))
		} else {
			a.journal = j
			a.health.EnableSQLite()
		}
	}
	return a, nil
}

// watchSinks pings the enabled sinks for /healthz until ctx ends.
func (a *app) watchSinks(ctx context.Context) {
	var rdb *goredis.Client
	var db *sql.DB
	if a.pub != nil {
		rdb = a.pub.Client()
	}
	if a.journal != nil {
		db = a.journal.DB()
	}
	if rdb != nil || db != nil {
		a.health.StartLivenessChecker(ctx, rdb, db, 15*time.Second)
	}
}

func (a *app) close() {
	a.mgr.Close()
	if a.pub != nil {
		a.pub.Close()
	}
	if a.journal != nil {
		a.journal.Close()
	}
}
