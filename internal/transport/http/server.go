package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ellis-vester/backloggd-discord/internal/modules/poller"
	"github.com/ellis-vester/backloggd-discord/internal/shared/config"
	sloghttp "github.com/samber/slog-http"
)

// Server exposes health and scheduling status over HTTP.
type Server struct {
	cfg       *config.Config
	scheduler *poller.Scheduler
	logger    *slog.Logger
}

// New creates a new HTTP server
func New(cfg *config.Config, scheduler *poller.Scheduler) *Server {
	return &Server{
		cfg:       cfg,
		scheduler: scheduler,
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	addr := fmt.Sprintf(":%s", s.cfg.HTTPPort)
	s.logger.Info("Status server starting", "addr", addr)

	// Use slog-http middleware with recovery
	handler := sloghttp.Recovery(mux)
	handler = sloghttp.New(s.logger)(handler)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	feeds := s.scheduler.Feeds()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"feeds": feeds,
		"count": len(feeds),
	}); err != nil {
		s.logger.Error("Error encoding status response", "error", err)
	}
}
