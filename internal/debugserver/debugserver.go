// Package debugserver exposes a small HTTP status surface over
// the running engine: layer states, a live feed of notify.Change events,
// and a manual rehook trigger, for the remapctl CLI and local debugging.
package debugserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dualrole/remapd/internal/layer"
	"github.com/dualrole/remapd/internal/notify"
)

// Rehooker is satisfied by the Engine Runtime.
type Rehooker interface {
	Rehook() error
}

// Server serves the diagnostic HTTP surface.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// Config configures the debug server.
type Config struct {
	Addr     string
	Layers   *layer.Graph
	Notify   *notify.Publisher
	Rehooker Rehooker
}

// New builds a Server ready to Start, wiring /health, /layers, /rehook,
// and /events (a newline-delimited JSON stream of notify.Change events).
func New(cfg Config, logger zerolog.Logger) *Server {
	s := &Server{logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/layers", s.handleLayers(cfg.Layers))
	mux.HandleFunc("/rehook", s.handleRehook(cfg.Rehooker))
	mux.HandleFunc("/events", s.handleEvents(cfg.Notify))

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // /events streams indefinitely
	}
	return s
}

// Start blocks until the server stops, returning http.ErrServerClosed on a
// clean Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("debug server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops accepting and completes in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type layerState struct {
	Name  string `json:"name"`
	State bool   `json:"state"`
	Lock  bool   `json:"lock"`
}

func (s *Server) handleLayers(layers *layer.Graph) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if layers == nil {
			writeJSON(w, http.StatusOK, []layerState{})
			return
		}
		all := layers.All()
		out := make([]layerState, len(all))
		for i, l := range all {
			out[i] = layerState{Name: l.Name, State: l.State, Lock: l.Lock}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleRehook(rehooker Rehooker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if rehooker == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "rehook unavailable"})
			return
		}
		if err := rehooker.Rehook(); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "rehooked"})
	}
}

// handleEvents streams notify.Change events as newline-delimited JSON
// until the client disconnects. Each connection gets its own subscriber
// channel so a slow client only drops its own backlog.
func (s *Server) handleEvents(pub *notify.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pub == nil {
			http.Error(w, "notifications unavailable", http.StatusServiceUnavailable)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)

		ch := pub.Subscribe()
		defer pub.Unsubscribe(ch)

		enc := json.NewEncoder(w)
		for {
			select {
			case change, ok := <-ch:
				if !ok {
					return
				}
				if err := enc.Encode(change); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"error":"encode failed: %v"}`, err)
	}
}
