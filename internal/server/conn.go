// Package server provides the transport abstraction that lets sessions run
// unchanged over raw TCP and over WebSocket.
package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one bidirectional message stream to a client. The owning Session is
// the only reader and the only writer; Close may additionally be called from
// a registry-initiated stop and must unblock a pending ReadMessage.
type Conn interface {
	ReadMessage() (Message, error)
	WriteMessage(Message) error
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}

// netConn frames messages as newline-delimited JSON over any net.Conn.
type netConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// NewNetConn wraps a stream connection. maxFrameSize caps the length of a
// single encoded message; an oversized frame surfaces as a read error.
func NewNetConn(conn net.Conn, maxFrameSize int64) Conn {
	// The scanner only enforces its limit when growing past the initial
	// buffer, so the initial buffer must not exceed the frame cap.
	initial := 4096
	if int(maxFrameSize) < initial {
		initial = int(maxFrameSize)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, initial), int(maxFrameSize))
	return &netConn{conn: conn, scanner: scanner}
}

func (c *netConn) ReadMessage() (Message, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Message{}, err
		}
		return Message{}, io.EOF
	}
	return DecodeMessage(c.scanner.Bytes())
}

func (c *netConn) WriteMessage(msg Message) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = c.conn.Write(append(data, '\n'))
	return err
}

func (c *netConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

func (c *netConn) Close() error { return c.conn.Close() }

func (c *netConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// wsConn frames one message per WebSocket text frame.
type wsConn struct {
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn, maxFrameSize int64) Conn {
	conn.SetReadLimit(maxFrameSize)
	// Clear any deadline inherited from the HTTP server's request cycle.
	_ = conn.SetReadDeadline(time.Time{})
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadMessage() (Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	return DecodeMessage(data)
}

func (c *wsConn) WriteMessage(msg Message) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

func (c *wsConn) Close() error { return c.conn.Close() }

func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// isClosedConnError reports whether err is the expected noise of a connection
// that was closed on purpose.
func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
