// Command chatwire-client is a line-based terminal client for the relay.
//
// Usage:
//
//	chatwire-client [server] <username> [port]
//
// Server and port default to localhost:1500. The keywords "logout" and
// "shutdown" leave the chat; any other input line is broadcast as text.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/chatwire/chatwire/internal/server"
)

const (
	defaultHost = "localhost"
	defaultPort = "1500"

	maxFrameSize = 64 * 1024
)

func main() {
	host, username, port := parseArgs(os.Args[1:])

	addr := net.JoinHostPort(host, port)
	rawConn, err := net.Dial("tcp", addr)
	if err != nil {
		exitf("chatwire-client: connect to %s: %v", addr, err)
	}
	conn := server.NewNetConn(rawConn, maxFrameSize)

	if err := conn.WriteMessage(server.Message{Type: server.TypeRegister, Body: username}); err != nil {
		exitf("chatwire-client: register: %v", err)
	}

	welcome, err := conn.ReadMessage()
	if err != nil {
		exitf("chatwire-client: read welcome: %v", err)
	}
	if welcome.Type == server.TypeLogout {
		exitf("chatwire-client: %s", welcome.Body)
	}

	id := welcome.SenderID
	printMessage(welcome)

	// Incoming traffic prints independently of the input loop below.
	go func() {
		for {
			msg, err := conn.ReadMessage()
			if err != nil {
				fmt.Println("connection closed")
				os.Exit(0)
			}
			printMessage(msg)
		}
	}()

	stdin := bufio.NewScanner(os.Stdin)
	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "logout":
			_ = conn.WriteMessage(server.Message{SenderID: id, Type: server.TypeLogout})
			_ = conn.Close()
			return
		case "shutdown":
			_ = conn.WriteMessage(server.Message{SenderID: id, Type: server.TypeShutdown})
			_ = conn.Close()
			return
		default:
			if err := conn.WriteMessage(server.Message{SenderID: id, Type: server.TypeText, Body: line}); err != nil {
				exitf("chatwire-client: send: %v", err)
			}
		}
	}
}

func printMessage(msg server.Message) {
	fmt.Printf("[%s] <%d> %s\n", time.Now().Format("15:04:05"), msg.SenderID, msg.Body)
}

func parseArgs(args []string) (host, username, port string) {
	host, port = defaultHost, defaultPort

	switch len(args) {
	case 1:
		username = args[0]
	case 2:
		host, username = args[0], args[1]
	case 3:
		host, username, port = args[0], args[1], args[2]
	default:
		exitf("usage: chatwire-client [server] <username> [port]")
	}
	return host, username, port
}

// exitf writes a formatted error to stderr and exits with code 1.
func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
