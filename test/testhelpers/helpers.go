// Package testhelpers provides shared utilities for the chatwire integration
// tests: starting a relay on loopback ports and driving protocol clients over
// TCP and WebSocket.
package testhelpers

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatwire/chatwire/internal/server"
)

const frameSize = 1 << 16

// Relay is a running server plus everything a test needs to talk to it.
type Relay struct {
	Srv     *server.Server
	TCPAddr string
	WSURL   string
	Done    <-chan error
}

// StartRelay runs a relay on loopback ports and tears it down with the test.
func StartRelay(t *testing.T) *Relay {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.RateLimit = server.RateLimitConfig{Burst: 1000, RefillInterval: time.Second}
	cfg.ShutdownTimeout = 2 * time.Second

	srv := server.NewServer(cfg)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		done <- srv.Serve(context.Background())
		close(stopped)
	}()

	t.Cleanup(func() {
		srv.RequestShutdown()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down in time")
		}
	})

	return &Relay{
		Srv:     srv,
		TCPAddr: srv.TCPAddr().String(),
		WSURL:   "ws://" + srv.HTTPAddr().String() + "/ws",
		Done:    done,
	}
}

// Client is a registered chat participant with a background reader, so tests
// never race each other for inbound messages.
type Client struct {
	t     *testing.T
	ID    int
	write func(server.Message) error
	close func() error
	msgs  chan server.Message
}

// DialTCP connects over TCP and registers username, failing the test if the
// registration is rejected.
func DialTCP(t *testing.T, addr, username string) *Client {
	t.Helper()

	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	conn := server.NewNetConn(raw, frameSize)

	return newClient(t, username, conn.WriteMessage, conn.Close, conn.ReadMessage)
}

// DialWS connects over WebSocket and registers username.
func DialWS(t *testing.T, url, username string) *Client {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}

	write := func(msg server.Message) error {
		data, err := server.EncodeMessage(msg)
		if err != nil {
			return err
		}
		return ws.WriteMessage(websocket.TextMessage, data)
	}
	read := func() (server.Message, error) {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return server.Message{}, err
		}
		return server.DecodeMessage(data)
	}

	return newClient(t, username, write, ws.Close, read)
}

func newClient(t *testing.T, username string, write func(server.Message) error, closeFn func() error, read func() (server.Message, error)) *Client {
	t.Helper()

	c := &Client{
		t:     t,
		write: write,
		close: closeFn,
		msgs:  make(chan server.Message, 64),
	}
	go func() {
		for {
			msg, err := read()
			if err != nil {
				close(c.msgs)
				return
			}
			c.msgs <- msg
		}
	}()
	t.Cleanup(func() { _ = closeFn() })

	if err := write(server.Message{Type: server.TypeRegister, Body: username}); err != nil {
		t.Fatalf("register %q: %v", username, err)
	}

	welcome := c.Next(2 * time.Second)
	if welcome.Type == server.TypeLogout {
		t.Fatalf("registration of %q rejected: %s", username, welcome.Body)
	}
	c.ID = welcome.SenderID
	return c
}

// DialTCPExpectReject connects, attempts registration, and returns the
// logout-typed rejection message.
func DialTCPExpectReject(t *testing.T, addr, username string) server.Message {
	t.Helper()

	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	conn := server.NewNetConn(raw, frameSize)
	t.Cleanup(func() { _ = conn.Close() })

	if err := conn.WriteMessage(server.Message{Type: server.TypeRegister, Body: username}); err != nil {
		t.Fatalf("register %q: %v", username, err)
	}

	type result struct {
		msg server.Message
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
			t.Fatalf("read rejection: %v", res.err)
		}
		if res.msg.Type != server.TypeLogout {
			t.Fatalf("rejection type = %s, want %s (body %q)", res.msg.Type, server.TypeLogout, res.msg.Body)
		}
		return res.msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the rejection message")
	}
	return server.Message{}
}

// Send broadcasts a text line.
func (c *Client) Send(body string) {
	c.t.Helper()
	if err := c.write(server.Message{SenderID: c.ID, Type: server.TypeText, Body: body}); err != nil {
		c.t.Fatalf("send %q: %v", body, err)
	}
}

// Logout sends a logout message.
func (c *Client) Logout() {
	c.t.Helper()
	if err := c.write(server.Message{SenderID: c.ID, Type: server.TypeLogout}); err != nil {
		c.t.Fatalf("logout: %v", err)
	}
}

// Shutdown asks the server to stop.
func (c *Client) Shutdown() {
	c.t.Helper()
	if err := c.write(server.Message{SenderID: c.ID, Type: server.TypeShutdown}); err != nil {
		c.t.Fatalf("shutdown: %v", err)
	}
}

// Close drops the connection without a logout, simulating an abrupt failure.
func (c *Client) Close() {
	_ = c.close()
}

// Next returns the next inbound message.
func (c *Client) Next(timeout time.Duration) server.Message {
	c.t.Helper()
	select {
	case msg, ok := <-c.msgs:
		if !ok {
			c.t.Fatal("connection closed while waiting for a message")
		}
		return msg
	case <-time.After(timeout):
		c.t.Fatalf("no message within %s", timeout)
	}
	return server.Message{}
}

// WaitFor reads until a message body contains substr.
func (c *Client) WaitFor(substr string, timeout time.Duration) server.Message {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("no message containing %q within %s", substr, timeout)
		}
		msg := c.Next(remaining)
		if strings.Contains(msg.Body, substr) {
			return msg
		}
	}
}

// ExpectSilence fails if any message arrives within d.
func (c *Client) ExpectSilence(d time.Duration) {
	c.t.Helper()
	select {
	case msg, ok := <-c.msgs:
		if ok {
			c.t.Fatalf("expected silence, received %+v", msg)
		}
		c.t.Fatal("expected silence, connection closed")
	case <-time.After(d):
	}
}

// WaitClosed blocks until the server closes the connection.
func (c *Client) WaitClosed(timeout time.Duration) {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("connection still open after %s", timeout)
		}
		select {
		case _, ok := <-c.msgs:
			if !ok {
				return
			}
		case <-time.After(remaining):
			c.t.Fatalf("connection still open after %s", timeout)
		}
	}
}
