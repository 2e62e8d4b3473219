// Package server exposes the operational HTTP surface: health, status, and
// Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/chat-tender/chat"
)

type Server struct {
	manager *chat.Manager
	httpSrv *http.Server
	started time.Time
}

func New(addr string, manager *chat.Manager) *Server {
	s := &Server{manager: manager, started: time.Now()}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("ops server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type statusResponse struct {
	ActiveConnections int      `json:"active_connections"`
	Channels          []string `json:"channels"`
	UptimeSeconds     int64    `json:"uptime_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		ActiveConnections: s.manager.ActiveConnections(),
		UptimeSeconds:     int64(time.Since(s.started).Seconds()),
	}
	for _, c := range s.manager.Connections() {
		resp.Channels = append(resp.Channels, c.Channel())
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("status encode failed", "error", err)
	}
}
