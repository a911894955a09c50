// Package server manages individual client sessions: the registration
// handshake, the blocking read loop, the buffered write pump, and idempotent
// teardown.
package server

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// outboundBuffer bounds the per-session delivery queue so one slow client
	// cannot stall a broadcast for everyone else.
	outboundBuffer = 256

	writeTimeout = 10 * time.Second
)

// Session is the server-side worker for one connected client. It owns its
// connection exclusively; all shared state lives in the Registry.
type Session struct {
	conn     Conn
	registry *Registry
	shutdown func() // requests full server shutdown
	limiter  *limiter

	id       int // assigned at admission, zero before
	username string

	outbound chan Message
	quit     chan struct{}
	stopOnce sync.Once
	active   atomic.Bool
}

// NewSession wraps a connection in an unregistered session. shutdown is
// invoked when the client sends a shutdown message; it may be nil.
func NewSession(conn Conn, registry *Registry, shutdown func(), rl RateLimitConfig) *Session {
	s := &Session{
		conn:     conn,
		registry: registry,
		shutdown: shutdown,
		limiter:  newLimiter(rl.Burst, rl.RefillInterval),
		outbound: make(chan Message, outboundBuffer),
		quit:     make(chan struct{}),
	}
	s.active.Store(true)
	return s
}

// ID returns the session's assigned id, or zero before admission.
func (s *Session) ID() int { return s.id }

// Username returns the name the session registered under.
func (s *Session) Username() string { return s.username }

// Run performs the registration handshake and then relays inbound messages
// until the client logs out, the connection fails, or the session is stopped.
// It must be called on its own goroutine.
func (s *Session) Run() {
	defer s.Stop()

	first, err := s.conn.ReadMessage()
	if err != nil {
		log.Printf("Dropping connection from %s before registration: %v", s.conn.RemoteAddr(), err)
		return
	}

	// The first message carries the desired username in its body, whatever
	// its tag; clients predating the register tag send it as text.
	username := strings.TrimSpace(first.Body)
	if username == "" {
		s.reject("a username is required to join")
		return
	}

	id, err := s.registry.Admit(username, s)
	if err != nil {
		switch err {
		case ErrUsernameTaken:
			s.reject(fmt.Sprintf("the username %q is already registered", username))
		case ErrRegistryClosed:
			s.reject("the server is shutting down")
		default:
			s.reject(err.Error())
		}
		return
	}
	s.id = id
	s.username = username

	go s.writePump()

	s.Send(Message{
		SenderID: id,
		Type:     TypeText,
		Body:     fmt.Sprintf("Welcome %s. Your id is %d. You can start chatting.", username, id),
	})

	s.readLoop()
}

// reject answers a failed registration with a single logout-typed message.
// The write pump is not running yet, so the write happens inline.
func (s *Session) reject(reason string) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(Message{Type: TypeLogout, Body: reason}); err != nil && !isClosedConnError(err) {
		log.Printf("Error sending rejection to %s: %v", s.conn.RemoteAddr(), err)
	}
	log.Printf("Rejected registration from %s: %s", s.conn.RemoteAddr(), reason)
}

func (s *Session) readLoop() {
	for s.active.Load() {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			// An I/O failure or malformed frame is an implicit disconnect:
			// same cleanup as logout, silent to other clients beyond the
			// registry's own removal notice.
			if s.active.Load() && !isClosedConnError(err) {
				log.Printf("Read error on session %d (%q): %v", s.id, s.username, err)
			}
			s.active.Store(false)
			s.registry.Remove(s.id)
			return
		}
		s.dispatch(msg)
	}
}

func (s *Session) dispatch(msg Message) {
	switch msg.Type {
	case TypeText:
		if !s.limiter.allow() {
			log.Printf("Rate limit exceeded for session %d (%q); discarding message", s.id, s.username)
			return
		}
		// Stamp the sender id; whatever the client wrote there is ignored.
		s.registry.Broadcast(Message{SenderID: s.id, Type: TypeText, Body: msg.Body})
	case TypeLogout:
		log.Printf("Session %d (%q) logged out", s.id, s.username)
		s.active.Store(false)
		s.registry.Remove(s.id)
	case TypeShutdown:
		log.Printf("Session %d (%q) requested server shutdown", s.id, s.username)
		s.active.Store(false)
		if s.shutdown != nil {
			s.shutdown()
		}
	case TypeRegister:
		log.Printf("Ignoring register message from already-admitted session %d (%q)", s.id, s.username)
	}
}

// Send queues one message for delivery and reports whether it was accepted.
// It never blocks: a stopped session or a full outbound buffer drops the
// message, which the broadcast path logs and otherwise ignores.
func (s *Session) Send(msg Message) bool {
	select {
	case <-s.quit:
		return false
	default:
	}

	select {
	case s.outbound <- msg:
		return true
	default:
		return false
	}
}

func (s *Session) writePump() {
	for {
		select {
		case <-s.quit:
			return
		case msg := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(msg); err != nil {
				if !isClosedConnError(err) {
					log.Printf("Write error on session %d (%q): %v", s.id, s.username, err)
				}
				s.Stop()
				return
			}
		}
	}
}

// Stop terminates the session. It is safe to call concurrently from the read
// loop's own cleanup and from a registry-initiated removal; the connection is
// released exactly once, which also unblocks a pending read.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.active.Store(false)
		close(s.quit)
		if err := s.conn.Close(); err != nil && !isClosedConnError(err) {
			log.Printf("Error closing connection for session %d: %v", s.id, err)
		}
	})
}
