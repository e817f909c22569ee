// Package redis publishes computed indicator result sets: the latest set per
// key is kept under a TTL'd string key and every set is announced on a
// pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"signalbot/internal/indicator"
	"signalbot/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultLatestTTL     = 30 * time.Minute
	defaultChannelPrefix = "pub:ind"
)

// Config configures the publisher.
type Config struct {
	Addr          string // e.g. "localhost:6379"
	Password      string
	DB            int
	LatestTTL     time.Duration // zero uses 30m
	ChannelPrefix string        // zero uses "pub:ind"
	MaxFailures   int           // consecutive failures before the breaker opens; zero uses 5
	Cooldown      time.Duration // zero uses 15s
}

func (c *Config) defaults() {
	if c.LatestTTL <= 0 {
		c.LatestTTL = defaultLatestTTL
	}
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = defaultChannelPrefix
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 15 * time.Second
	}
}

// Publisher writes result sets to Redis through a circuit breaker.
type Publisher struct {
	client  *goredis.Client
	cfg     Config
	breaker *CircuitBreaker
	log     *slog.Logger
}

// New connects to Redis and pings it.
func New(cfg Config, log *slog.Logger) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	p := newPublisher(client, cfg, log)
	p.log.Info("connected", slog.String("addr", cfg.Addr))
	return p, nil
}

func newPublisher(client *goredis.Client, cfg Config, log *slog.Logger) *Publisher {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "redis"))
	cb := NewCircuitBreaker(cfg.MaxFailures, cfg.Cooldown)
	cb.OnStateChange = func(from, to State) {
		log.Warn("circuit breaker", slog.String("from", from.String()), slog.String("to", to.String()))
	}
	return &Publisher{client: client, cfg: cfg, breaker: cb, log: log}
}

// Client returns the underlying client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the breaker state.
func (p *Publisher) Breaker() *CircuitBreaker { return p.breaker }

// Channel returns the pub/sub channel for key.
func (p *Publisher) Channel(key model.Key) string {
	return p.cfg.ChannelPrefix + ":" + key.Symbol + ":" + key.Interval
}

// LatestKey returns the string key holding the newest result set for key.
func LatestKey(key model.Key) string {
	return "ind:latest:" + key.Symbol + ":" + key.Interval
}

// Publish stores rs as the latest set for its key and announces it, in one
// pipeline round trip.
func (p *Publisher) Publish(ctx context.Context, rs *indicator.ResultSet) error {
	if rs == nil {
		return nil
	}
	key := model.Key{Symbol: rs.Symbol, Interval: rs.Interval}
	payload := string(rs.JSON())

	return p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, rs.StreamKey(), payload, p.cfg.LatestTTL)
		pipe.Publish(ctx, p.Channel(key), payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis: publish %s: %w", key, err)
		}
		return nil
	})
}

// ErrNotFound is returned by Latest when nothing was published for the key
// within the TTL.
var ErrNotFound = errors.New("redis: no result set")

// Latest reads back the newest published result set for key.
func (p *Publisher) Latest(ctx context.Context, key model.Key) (*indicator.ResultSet, error) {
	raw, err := p.client.Get(ctx, LatestKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", LatestKey(key), err)
	}
	var rs indicator.ResultSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("redis: decode %s: %w", LatestKey(key), err)
	}
	return &rs, nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
