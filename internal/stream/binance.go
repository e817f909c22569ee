package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"signalbot/internal/model"
)

// BinanceConfig holds configuration for the exchange kline stream.
type BinanceConfig struct {
	// URL of the raw stream endpoint, e.g. "wss://stream.binance.com:9443/ws".
	// The stream name "<symbol>@kline_<interval>" is appended.
	URL string

	// HandshakeTimeout defaults to 10 seconds if zero.
	HandshakeTimeout time.Duration
}

// BinanceFeed reads kline events from one websocket connection per Run.
// It does not reconnect: a dropped connection ends Run with an error.
type BinanceFeed struct {
	cfg    BinanceConfig
	dialer *websocket.Dialer
	log    *slog.Logger
}

// NewBinanceFeed validates cfg and creates a feed.
func NewBinanceFeed(cfg BinanceConfig, log *slog.Logger) (*BinanceFeed, error) {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("stream: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("stream: url scheme %q is not ws/wss", u.Scheme)
	}
	if log == nil {
		log = slog.Default()
	}
	return &BinanceFeed{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log: log.With(slog.String("component", "binance_feed")),
	}, nil
}

// Run dials the kline stream for key and emits every kline event until the
// connection drops or ctx is cancelled.
func (f *BinanceFeed) Run(ctx context.Context, key model.Key, emit func(model.KlineTick)) error {
	u := strings.TrimRight(f.cfg.URL, "/") + "/" + key.StreamName()

	conn, _, err := f.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("stream: dial %s: %w", u, err)
	}
	defer conn.Close()

	f.log.Info("connected", slog.String("url", u))

	// Closes the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribe"),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream: read %s: %w", key, err)
		}

		var ev model.KlineEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			f.log.Warn("decode error", slog.String("error", err.Error()), slog.Int("bytes", len(raw)))
			continue
		}
		if ev.EventType != "kline" {
			continue
		}
		emit(ev.Kline)
	}
}
