// Package server implements the HTTP server functionality for the chat service.
package server

import (
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/store"
)

// Server bundles the chat core, the message store, and the WebSocket hub
// behind one set of HTTP handlers.
type Server struct {
	cfg      Config
	store    store.Store
	sessions *chat.Handler
	hub      *Hub
	origins  *originPolicy
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// New builds a Server around st. Zero fields in cfg take their defaults.
func New(cfg Config, st store.Store, log *slog.Logger) *Server {
	cfg = cfg.Sanitized()
	sessions := chat.NewHandler(st, log)

	s := &Server{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		hub:      NewHub(sessions, cfg, log),
		origins:  newOriginPolicy(cfg.AllowedOrigins, log),
		log:      log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	return s
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config {
	return s.cfg
}

// Hub returns the WebSocket hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Sessions returns the chat session handler.
func (s *Server) Sessions() *chat.Handler {
	return s.sessions
}

// StartHub starts the hub's run loop in a separate goroutine.
// This should be called before starting the HTTP server.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info("Hub started and ready to manage WebSocket connections")
}
