// Package server defines HTTP payload types and utility helpers that are
// reused across client, hub, and handler logic.
package server

import (
	"errors"
	"net"
	"strings"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// historyResponse is the body of GET /api/messages/{room}.
type historyResponse struct {
	Messages []chat.NewMessage `json:"messages"`
}

// directRoomRequest is the body of POST /api/direct_room. Both JSON and
// form encodings are accepted.
type directRoomRequest struct {
	User  string `json:"user" validate:"required,max=64"`
	Other string `json:"other" validate:"required,max=64"`
}

type directRoomResponse struct {
	Room string `json:"room"`
}

type roomsResponse struct {
	Rooms []string `json:"rooms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
