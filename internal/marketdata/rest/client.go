// Package rest fetches historical klines over the exchange REST API. It is
// the pull-based fallback used when no live window is available.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"signalbot/internal/model"
	"signalbot/internal/trace"
)

// MaxLimit is the largest page the klines endpoint is asked for.
const MaxLimit = 200

// Config holds REST client settings.
type Config struct {
	BaseURL string        // e.g. "https://api.binance.com"
	Timeout time.Duration // per request; 0 keeps the http.Client default
}

// Client calls GET /api/v3/klines and /api/v3/ticker/24hr.
type Client struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

// NewClient creates a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, client: httpClient, now: time.Now}
}

// FetchKlines returns up to limit candles for key, oldest first. The newest
// candle is final only if its close time has passed. Any malformed row fails
// the whole call; a partial history is never returned.
func (c *Client) FetchKlines(ctx context.Context, key model.Key, limit int) ([]model.Candle, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}

	ctx, span := trace.StartSpan(ctx, "rest.FetchKlines")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", key.Symbol),
		attribute.String("interval", key.Interval),
		attribute.Int("limit", limit),
	)

	q := url.Values{}
	q.Set("symbol", key.Symbol)
	q.Set("interval", key.Interval)
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]any
	if err := c.get(ctx, "/api/v3/klines", q, &rows); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rest: klines %s: %w", key, err)
	}

	now := c.now()
	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		cd, err := model.CandleFromRow(row, now)
		if err != nil {
			return nil, fmt.Errorf("rest: row %d: %w", i, err)
		}
		candles = append(candles, cd)
	}
	span.SetAttributes(attribute.Int("candles", len(candles)))
	return candles, nil
}

// Ticker returns the rolling 24h summary for symbol.
func (c *Client) Ticker(ctx context.Context, symbol string) (model.Ticker, error) {
	ctx, span := trace.StartSpan(ctx, "rest.Ticker")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	var raw map[string]any
	if err := c.get(ctx, "/api/v3/ticker/24hr", url.Values{"symbol": {symbol}}, &raw); err != nil {
		span.RecordError(err)
		return model.Ticker{}, fmt.Errorf("rest: ticker %s: %w", symbol, err)
	}
	t, err := model.TickerFromMap(raw)
	if err != nil {
		return model.Ticker{}, fmt.Errorf("rest: ticker %s: %w", symbol, err)
	}
	return t, nil
}

// get decodes the JSON body of GET path?q into v, keeping numbers as
// json.Number.
func (c *Client) get(ctx context.Context, path string, q url.Values, v any) error {
	u := fmt.Sprintf("%s%s?%s", c.cfg.BaseURL, path, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 256))
		return fmt.Errorf("http %d: %s", res.StatusCode, body)
	}

	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
