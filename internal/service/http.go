package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signalbot/internal/model"
	"signalbot/internal/stream"
)

func (s *Service) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/indicators", s.handleIndicators)
	mux.HandleFunc("/subscribe", s.handleSubscribe)
	mux.HandleFunc("/buffers", s.handleBuffers)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/ticker", s.handleTicker)
	mux.Handle("/healthz", s.health)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	return mux
}

// handleIndicators handles GET /indicators?symbol=&interval=.
func (s *Service) handleIndicators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	key, ok := keyFromQuery(w, r)
	if !ok {
		return
	}
	rs, err := s.Compute(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// handleSubscribe handles POST /subscribe?symbol=&interval= and DELETE /subscribe.
func (s *Service) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		key, ok := keyFromQuery(w, r)
		if !ok {
			return
		}
		if err := s.SubscribeAndLoad(key); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "subscribed", "key": key})
	case http.MethodDelete:
		key, active := s.mgr.Active()
		s.mgr.Unsubscribe()
		if active {
			s.health.SetStream(key.String(), false)
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "unsubscribed"})
	default:
		http.Error(w, "POST or DELETE only", http.StatusMethodNotAllowed)
	}
}

type bufferInfo struct {
	Key      model.Key     `json:"key"`
	Active   bool          `json:"active"`
	Len      int           `json:"len"`
	Version  uint64        `json:"version"`
	LastTime *time.Time    `json:"last_time,omitempty"`
	Last     *model.Candle `json:"last,omitempty"`
}

// handleBuffers handles GET /buffers.
func (s *Service) handleBuffers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	active, hasActive := s.mgr.Active()
	keys := s.mgr.Keys()
	out := make([]bufferInfo, 0, len(keys))
	for _, k := range keys {
		snap, _ := s.mgr.Snapshot(k)
		info := bufferInfo{
			Key:     k,
			Active:  hasActive && active == k,
			Len:     snap.Len(),
			Version: snap.Version,
		}
		if last, ok := snap.Last(); ok {
			info.Last = &last
			info.LastTime = &last.Time
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHistory handles GET /history?symbol=&interval=&limit=.
func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	key, ok := keyFromQuery(w, r)
	if !ok {
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be 1..500", http.StatusBadRequest)
			return
		}
		limit = n
	}
	sets, err := s.History(r.Context(), key, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

// handleTicker handles GET /ticker?symbol=.
func (s *Service) handleTicker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	t, err := s.Ticker(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func keyFromQuery(w http.ResponseWriter, r *http.Request) (model.Key, bool) {
	q := r.URL.Query()
	key, err := model.ParseKey(q.Get("symbol"), q.Get("interval"))
	if err != nil {
		writeError(w, err)
		return model.Key{}, false
	}
	return key, true
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidKey):
		code = http.StatusBadRequest
	case errors.Is(err, stream.ErrFallback), errors.Is(err, ErrTicker):
		code = http.StatusBadGateway
	case errors.Is(err, stream.ErrNoFeed), errors.Is(err, stream.ErrClosed), errors.Is(err, ErrNoJournal),
		errors.Is(err, ErrNoTicker):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
