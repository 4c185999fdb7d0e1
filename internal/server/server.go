// Package server implements the sandterm HTTP API, the command/control
// WebSocket channel, and the interactive PTY bridge.
package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/choonkeat/sandterm/internal/config"
	"github.com/choonkeat/sandterm/internal/sandbox"
	"github.com/choonkeat/sandterm/internal/session"
)

// Server wires the session registry and the sandbox manager into the HTTP
// and WebSocket surfaces. One Server backs both listen addresses.
type Server struct {
	cfg       config.Settings
	store     session.Store
	sandboxes *sandbox.Manager
	upgrader  websocket.Upgrader
}

// New builds a Server. The registry is injected so tests can substitute
// their own Store.
func New(cfg config.Settings, store session.Store, sandboxes *sandbox.Manager) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		sandboxes: sandboxes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser page and the API are served from different
			// origins in every deployment, so origin checks stay open.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router returns the main API handler: exec, health, reset, and the command
// channel WebSocket.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleOK)
	r.Get("/ping", s.handleOK)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleOK)
		r.Get("/ping", s.handleOK)
		r.Post("/health", s.handleHealth)
		r.Post("/exec", s.handleExec)
		r.Get("/reset", s.handleReset)
		r.Post("/reset", s.handleReset)
		r.Get("/ws", s.handleCommandWS)
	})
	return r
}

// PTYRouter returns the handler for the PTY bridge address.
func (s *Server) PTYRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleOK)
	r.Get("/terminal", s.handlePTY)
	return r
}

func (s *Server) handleOK(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// resolveSandbox registers the tab (when given) and returns the session's
// executor along with the post-resolve tab count.
func (s *Server) resolveSandbox(sessionID, tabID string) (sandbox.Executor, int, error) {
	sandboxID, activeTabs := s.store.Resolve(sessionID, tabID)
	exec, err := s.sandboxes.Get(sandboxID)
	if err != nil {
		return nil, 0, err
	}
	return exec, activeTabs, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] write response: %v", err)
	}
}
