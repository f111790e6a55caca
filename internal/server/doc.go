// Package server implements the HTTP and WebSocket transport for the chat core.
//
// The implementation is organized into specialized files for configuration, hub
// management, clients, routing, logging, and HTTP handlers. Chat semantics live
// in package chat; this package only moves frames between sockets and the
// session handler.
package server
