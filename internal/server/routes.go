// Package server wires the HTTP handlers into a ServeMux.
package server

import "net/http"

// Routes configures and returns the HTTP mux: health at the root and the
// WebSocket endpoint at /ws.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}
