package server

import (
	"net"
	"strings"
	"testing"
	"time"
)

const testFrameSize = 1 << 16

func testRateLimit() RateLimitConfig {
	return RateLimitConfig{Burst: 1000, RefillInterval: time.Second}
}

// newIdleSession returns a session whose pumps are not running, plus the
// client end of its pipe. Send only enqueues, so tests can inspect the
// outbound queue directly.
func newIdleSession(t *testing.T, reg *Registry) (*Session, Conn) {
	t.Helper()

	serverEnd, clientEnd := net.Pipe()
	s := NewSession(NewNetConn(serverEnd, testFrameSize), reg, nil, testRateLimit())
	t.Cleanup(s.Stop)
	return s, NewNetConn(clientEnd, testFrameSize)
}

// admit registers an idle session under username, failing the test on error.
func admit(t *testing.T, reg *Registry, username string) (*Session, int) {
	t.Helper()

	s, _ := newIdleSession(t, reg)
	id, err := reg.Admit(username, s)
	if err != nil {
		t.Fatalf("Admit(%q) failed: %v", username, err)
	}
	s.id = id
	s.username = username
	return s, id
}

// nextQueued pops the next queued outbound message of an idle session.
func nextQueued(s *Session) (Message, bool) {
	select {
	case msg := <-s.outbound:
		return msg, true
	default:
		return Message{}, false
	}
}

func drainQueued(s *Session) {
	for {
		if _, ok := nextQueued(s); !ok {
			return
		}
	}
}

// startSession launches a full session (handshake plus pumps) over an
// in-memory pipe and returns the client end.
func startSession(t *testing.T, reg *Registry, shutdown func()) Conn {
	t.Helper()

	serverEnd, clientEnd := net.Pipe()
	s := NewSession(NewNetConn(serverEnd, testFrameSize), reg, shutdown, testRateLimit())
	go s.Run()

	client := NewNetConn(clientEnd, testFrameSize)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// register performs the handshake on a fresh session and returns the client
// end together with the assigned id.
func register(t *testing.T, reg *Registry, shutdown func(), username string) (Conn, int) {
	t.Helper()

	conn := startSession(t, reg, shutdown)
	if err := conn.WriteMessage(Message{Type: TypeRegister, Body: username}); err != nil {
		t.Fatalf("register %q: %v", username, err)
	}

	welcome := readMessage(t, conn, 2*time.Second)
	if welcome.Type != TypeText {
		t.Fatalf("welcome for %q has type %s, want %s (body: %q)", username, welcome.Type, TypeText, welcome.Body)
	}
	return conn, welcome.SenderID
}

func readMessage(t *testing.T, conn Conn, timeout time.Duration) Message {
	t.Helper()

	type result struct {
		msg Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := conn.ReadMessage()
		ch <- result{msg, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("read message: %v", res.err)
		}
		return res.msg
	case <-time.After(timeout):
		t.Fatalf("timed out after %s waiting for a message", timeout)
	}
	return Message{}
}

// readUntil keeps reading until a message body contains substr.
func readUntil(t *testing.T, conn Conn, substr string, timeout time.Duration) Message {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("no message containing %q within %s", substr, timeout)
		}
		msg := readMessage(t, conn, remaining)
		if strings.Contains(msg.Body, substr) {
			return msg
		}
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
