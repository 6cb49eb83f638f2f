package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/otaviofr/convo/internal/index"
	"github.com/otaviofr/convo/internal/status"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the daemon's loopback debug endpoint: prometheus metrics, a
// health probe, and read-only views of the conversation index. It is not
// a client API.
type Server struct {
	httpServer *http.Server
	addr       string
	logger     *zap.Logger

	mu    sync.Mutex
	bound net.Addr
}

// NewServer builds the debug HTTP server. A nil server (disabled debug
// endpoint) is returned when no address is configured.
func NewServer(p Params, machine *status.Machine, idx *index.Index, logger *zap.Logger) *Server {
	if p.DebugAddr == "" {
		return nil
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": string(machine.Current())})
	}).Methods(http.MethodGet)
	r.HandleFunc("/debug/conversations", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, idx.OrderedView())
	}).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:              p.DebugAddr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		addr:   p.DebugAddr,
		logger: logger,
	}
}

// Start serves until Stop is called. It blocks.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bound = ln.Addr()
	s.mu.Unlock()
	s.logger.Info("debug server listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Stop shuts the server down, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("debug server shutdown", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
