package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"signalbot/internal/indicator"
	"signalbot/internal/logger"
	"signalbot/internal/model"
	"signalbot/internal/service"
)

var (
	computeSymbol   string
	computeInterval string
	computeJSON     bool
	computeDecimals int
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Fetch history once and print every indicator",
	Example: `  signalbot compute --symbol BTCUSDT --interval 1h
  signalbot compute --symbol ethusdt --interval 5m --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := model.ParseKey(computeSymbol, computeInterval)
		if err != nil {
			return err
		}
		// Logs go to stderr so stdout stays parseable.
		log := logger.New(os.Stderr, "signalbot", logger.ParseLevel(cfg.LogLevel))

		a, err := wire(cfg, log, false)
		if err != nil {
			return err
		}
		defer a.close()

		deps := service.Deps{Manager: a.mgr, Engine: a.engine, Tickers: a.tickers, Metrics: a.met, Health: a.health, Gatherer: a.reg, Logger: log}
		if a.pub != nil {
			deps.Publisher = a.pub
		}
		if a.journal != nil {
			deps.Journal = a.journal
		}
		svc := service.New(service.Options{
			FallbackLimit:     cfg.FallbackLimit,
			IncludeOpenCandle: cfg.IncludeOpenCandle,
		}, deps)

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.FetchTimeout+cfg.FetchTimeout/2)
		defer cancel()
		rs, err := svc.Compute(ctx, key)
		if err != nil {
			log.Error("compute failed", slog.String("key", key.String()), slog.String("error", err.Error()))
			return err
		}

		if computeJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rs)
		}
		var tk *model.Ticker
		if t, err := svc.Ticker(ctx, key.Symbol); err != nil {
			log.Warn("ticker unavailable", slog.String("symbol", key.Symbol), slog.String("error", err.Error()))
		} else {
			tk = &t
		}
		return printResultSet(cmd.OutOrStdout(), rs, tk, computeDecimals)
	},
}

// printResultSet writes one aligned row per indicator field, preceded by the
// 24h price line when tk is known.
func printResultSet(w io.Writer, rs *indicator.ResultSet, tk *model.Ticker, decimals int) error {
	fmt.Fprintf(w, "%s %s  candles=%d  source=%s  at=%s\n",
		rs.Symbol, rs.Interval, rs.Candles, rs.Source, rs.ComputedAt.Format("2006-01-02 15:04:05Z07:00"))
	if tk != nil {
		num := func(f float64) string { return indicator.FormatNum(indicator.Scalar(f), decimals) }
		fmt.Fprintf(w, "price=%s  24h high=%s  low=%s  change=%+.2f%%  volume=%s\n",
			num(tk.LastPrice), num(tk.HighPrice), num(tk.LowPrice), tk.PriceChangePercent, num(tk.Volume))
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "INDICATOR\tFIELD\tVALUE\t")
	for _, r := range rs.Results {
		for i, f := range r.Fields {
			name := r.Name
			if i > 0 {
				name = ""
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t\n", name, f.Label, indicator.FormatNum(f.Value, decimals))
		}
	}
	return tw.Flush()
}

func init() {
	f := computeCmd.Flags()
	f.StringVar(&computeSymbol, "symbol", "BTCUSDT", "trading pair, e.g. BTCUSDT")
	f.StringVar(&computeInterval, "interval", "1m", "kline interval, e.g. 1m, 4h, 1d")
	f.BoolVar(&computeJSON, "json", false, "print the result set as JSON")
	f.IntVar(&computeDecimals, "decimals", 2, "decimals in the table output")
}
