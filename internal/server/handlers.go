// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the message history API.
package server

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// naiveTimestampLayouts are accepted for ?before= values without a zone;
// they are read as UTC.
var naiveTimestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// WebSocketHandler handles WebSocket upgrade requests and manages client connections.
// It validates that the request uses the GET method, upgrades the HTTP connection
// to WebSocket, and hands the new Client to the hub.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr)
	if !s.hub.Register(client) {
		s.log.Info("Hub is shutting down; rejecting connection", "addr", r.RemoteAddr)
		client.closeConnection()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "roomchat server is running!")
}

// HistoryHandler returns up to limit messages of a room, oldest first.
// An optional before timestamp pages backwards; an unparseable one is ignored.
func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")

	limit := s.cfg.History.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, s.cfg.History.MaxLimit)
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		if ts, ok := parseTimestamp(raw); ok {
			before = &ts
		} else {
			s.log.Debug("Ignoring unparseable before parameter", "before", raw)
		}
	}

	msgs, err := s.store.Page(r.Context(), room, limit, before)
	if err != nil {
		s.log.Error("Failed to load message history", "room", room, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load messages"})
		return
	}

	s.writeJSON(w, http.StatusOK, historyResponse{
		Messages: lo.Map(msgs, func(m store.Message, _ int) chat.NewMessage {
			return chat.NewMessageFrom(m)
		}),
	})
}

// DirectRoomHandler returns the canonical direct-message room for two users.
func (s *Server) DirectRoomHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeDirectRoomRequest(w, r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	req.User = strings.TrimSpace(req.User)
	req.Other = strings.TrimSpace(req.Other)
	if err := validate.Struct(req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user and other are required"})
		return
	}

	s.writeJSON(w, http.StatusOK, directRoomResponse{Room: chat.DirectRoom(req.User, req.Other)})
}

// RoomsHandler lists rooms that have stored messages.
func (s *Server) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.store.Rooms(r.Context(), store.DefaultRoomsLimit)
	if err != nil {
		s.log.Error("Failed to list rooms", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list rooms"})
		return
	}
	if rooms == nil {
		rooms = []string{}
	}
	s.writeJSON(w, http.StatusOK, roomsResponse{Rooms: rooms})
}

func decodeDirectRoomRequest(w http.ResponseWriter, r *http.Request) (directRoomRequest, error) {
	var req directRoomRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req)
		return req, err
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.User = r.PostForm.Get("user")
	req.Other = r.PostForm.Get("other")
	return req, nil
}

func parseTimestamp(raw string) (time.Time, bool) {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC(), true
	}
	for _, layout := range naiveTimestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("Error writing JSON response", "error", err)
	}
}
