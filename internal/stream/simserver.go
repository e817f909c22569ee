package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalbot/internal/model"
)

// SimServer imitates the exchange endpoints the service consumes: kline
// streams at /ws/<symbol>@kline_<interval> and history at /api/v3/klines.
// Every client of one stream sees the same generated candles.
type SimServer struct {
	cfg      SimConfig
	log      *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu   sync.Mutex
	hubs map[model.Key]*hub
}

// hub fans one generator out to the clients of a stream.
type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	cancel  context.CancelFunc
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop the update
		}
	}
}

// NewSimServer creates a simulator.
func NewSimServer(cfg SimConfig, log *slog.Logger) *SimServer {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &SimServer{
		cfg:      cfg,
		log:      log.With(slog.String("component", "simserver")),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		now:      time.Now,
		hubs:     make(map[model.Key]*hub),
	}
}

// Handler returns the simulator routes.
func (s *SimServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.serveStream)
	mux.HandleFunc("/api/v3/klines", s.serveKlines)
	mux.HandleFunc("/api/v3/ticker/24hr", s.serveTicker)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"simserver"}`)
	})
	return mux
}

// Streams returns the number of streams with at least one client.
func (s *SimServer) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hubs)
}

func (s *SimServer) serveStream(w http.ResponseWriter, r *http.Request) {
	key, err := model.ParseStreamName(strings.TrimPrefix(r.URL.Path, "/ws/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	s.log.Info("client connected", slog.String("stream", key.StreamName()), slog.String("remote", r.RemoteAddr))

	ch := s.register(key, conn)
	defer func() {
		s.unregister(key, conn)
		conn.Close()
		s.log.Info("client disconnected", slog.String("stream", key.StreamName()), slog.String("remote", r.RemoteAddr))
	}()

	// Read pump: notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case msg := <-ch:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (s *SimServer) register(key model.Key, conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hubs[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		h = &hub{clients: make(map[*websocket.Conn]chan []byte), cancel: cancel}
		s.hubs[key] = h
		go s.generate(ctx, key, h)
	}
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

// unregister drops conn and stops the generator with the last client.
func (s *SimServer) unregister(key model.Key, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hubs[key]
	if !ok {
		return
	}
	h.mu.Lock()
	delete(h.clients, conn)
	empty := len(h.clients) == 0
	h.mu.Unlock()
	if empty {
		h.cancel()
		delete(s.hubs, key)
	}
}

func (s *SimServer) generate(ctx context.Context, key model.Key, h *hub) {
	start := s.now().UTC()
	if d := key.Duration(); d > 0 {
		start = start.Truncate(d)
	}
	g := NewGenerator(key, s.cfg, start)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b, err := json.Marshal(g.Next())
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

// serveKlines answers GET /api/v3/klines?symbol=&interval=&limit= with
// generated history rows.
func (s *SimServer) serveKlines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := model.ParseKey(q.Get("symbol"), q.Get("interval"))
	if err != nil {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
		return
	}
	limit := 500
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			http.Error(w, `{"code":-1100,"msg":"Illegal characters found in parameter 'limit'."}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	candles := History(key, s.cfg, s.now(), limit)
	rows := make([][]any, len(candles))
	for i, c := range candles {
		rows[i] = key.Row(c)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

// serveTicker answers GET /api/v3/ticker/24hr?symbol= from generated hourly
// candles.
func (s *SimServer) serveTicker(w http.ResponseWriter, r *http.Request) {
	sym, err := model.ParseSymbol(r.URL.Query().Get("symbol"))
	if err != nil {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SimTicker(sym, s.cfg, s.now()).Map())
}
