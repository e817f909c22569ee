package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"signalbot/internal/logger"
	"signalbot/internal/stream"
)

var (
	simAddr           string
	simTicksPerCandle int
)

var simserverCmd = &cobra.Command{
	Use:   "simserver",
	Short: "Serve simulated kline streams and history for offline runs",
	Long: `simserver imitates the exchange: websocket kline streams at
/ws/<symbol>@kline_<interval> and history at /api/v3/klines. Point
BINANCE_WS_URL at ws://<addr>/ws and BINANCE_REST_URL at http://<addr>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Init("signalbot-sim", logger.ParseLevel(cfg.LogLevel))
		sim := stream.NewSimServer(stream.SimConfig{
			StartPrice:     cfg.SimStartPrice,
			TicksPerCandle: simTicksPerCandle,
			TickInterval:   cfg.SimTickInterval,
			Seed:           cfg.SimSeed,
		}, log)

		srv := &http.Server{Addr: simAddr, Handler: sim.Handler(), ReadHeaderTimeout: 5 * time.Second}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			log.Info("listening", slog.String("addr", simAddr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	},
}

func init() {
	simserverCmd.Flags().StringVar(&simAddr, "addr", ":9443", "listen address")
	simserverCmd.Flags().IntVar(&simTicksPerCandle, "ticks-per-candle", 10, "updates per candle before it closes")
}
