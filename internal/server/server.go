// Package server provides the HTTP server for kalimat.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/kalimat/internal/app"
	"github.com/ayusman/kalimat/internal/server/api"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       *app.App
	// Sessions enables GET /api/sessions when set.
	Sessions api.SessionHistory
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	hub    *TranscriptHub
	start  time.Time
}

// New creates a new Server with the given configuration. When an App is
// configured the server subscribes its transcript hub to the app's events.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		hub:    NewTranscriptHub(),
		start:  time.Now(),
	}
	if config.App != nil {
		config.App.AddSink(s.hub)
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if a := s.config.App; a != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(a))
		s.mux.Handle("/api/prediction", api.NewPredictionHandler(a))
		s.mux.Handle("/api/log", api.NewLogHandler(a))
		s.mux.Handle("/api/sentence/clear", api.NewClearHandler(a))
		s.mux.Handle("/api/status", api.NewStatusHandler(a))
		s.mux.Handle("/api/mirror", api.NewMirrorHandler(a))

		settings := api.NewSettingsHandler(a)
		s.mux.Handle("/api/settings", settings)
		s.mux.Handle("/api/settings/", settings)

		s.mux.Handle("/api/transcript/ws", s.hub)
	}

	if s.config.Sessions != nil {
		s.mux.Handle("/api/sessions", api.NewSessionsHandler(s.config.Sessions))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// Hub returns the websocket hub receiving transcript events.
func (s *Server) Hub() *TranscriptHub {
	return s.hub
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is cancelled. Request contexts
// derive from ctx so open streams end on shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
