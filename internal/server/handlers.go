// Package server exposes the HTTP handlers: WebSocket upgrades with origin
// checking and the health endpoint.
package server

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// handleWebSocket upgrades the request and hands the connection to a new
// Session, which runs the same handshake and read loop as a TCP client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "WebSocket endpoint only accepts GET requests", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	sess := NewSession(newWSConn(conn, s.cfg.MaxMessageSize), s.registry, s.RequestShutdown, s.cfg.RateLimit)
	go sess.Run()
}

// handleHealth reports liveness and the connected-session count.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chatwire relay is running (%d sessions connected)\n", s.registry.Len())
}

func (s *Server) checkOrigin(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		// Non-browser clients send no Origin header.
		return true
	}
	if s.allowAllOrigins {
		return true
	}

	origin, ok := normalizeOrigin(originHeader)
	if !ok {
		log.Printf("Blocked WebSocket connection with invalid origin: %q", originHeader)
		return false
	}

	if _, allowed := s.allowedOrigins[origin]; !allowed {
		log.Printf("Blocked WebSocket connection from disallowed origin: %q", origin)
		return false
	}
	return true
}

// normalizeOrigins lowercases and deduplicates the configured origin list.
// A literal "*" entry allows all origins.
func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	normalized := make(map[string]struct{}, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAll = true
			continue
		}
		if n, ok := normalizeOrigin(trimmed); ok {
			normalized[n] = struct{}{}
		} else {
			log.Printf("Ignoring invalid origin in configuration: %q", origin)
		}
	}

	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
