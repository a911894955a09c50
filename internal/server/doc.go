// Package server implements the chatwire relay core.
//
// A Session owns one client connection and its read loop; the Registry owns
// the live-session maps and the ban set behind a single mutex; the Server
// accepts TCP and WebSocket connections and drives the lifecycle of both.
// The implementation is split into files for the message codec, transports,
// sessions, the registry, configuration, routing, and HTTP handlers.
package server
