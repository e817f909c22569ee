package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"signalbot/internal/logger"
	"signalbot/internal/service"
	"signalbot/internal/trace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service with the live stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Init("signalbot", logger.ParseLevel(cfg.LogLevel))
		if err := trace.Init("signalbot", cfg.TracingEnabled); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			trace.Shutdown(ctx)
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := wire(cfg, log, true)
		if err != nil {
			return err
		}
		defer a.close()
		a.watchSinks(ctx)

		opts := service.Options{
			HTTPAddr:          cfg.HTTPAddr,
			FallbackLimit:     cfg.FallbackLimit,
			IncludeOpenCandle: cfg.IncludeOpenCandle,
			JournalKeep:       cfg.JournalKeep,
		}
		if k, ok := cfg.DefaultKey(); ok {
			opts.DefaultKey = &k
		}
		deps := service.Deps{
			Manager:  a.mgr,
			Engine:   a.engine,
			Tickers:  a.tickers,
			Metrics:  a.met,
			Health:   a.health,
			Gatherer: a.reg,
			Logger:   log,
		}
		if a.pub != nil {
			deps.Publisher = a.pub
		}
		if a.journal != nil {
			deps.Journal = a.journal
		}

		log.Info("starting",
			slog.String("feed", cfg.FeedMode),
			slog.String("http", cfg.HTTPAddr),
			slog.Int("indicators", len(a.engine.Names())),
			slog.Bool("redis", a.pub != nil),
			slog.Bool("sqlite", a.journal != nil),
		)
		return service.New(opts, deps).Run(ctx)
	},
}
