// Command chatwire-server runs the chat relay. Configuration comes from the
// environment and an optional YAML file named by CHATWIRE_CONFIG.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatwire/chatwire/internal/server"
)

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		exitf("chatwire-server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg)
	if err := srv.Run(ctx); err != nil {
		exitf("chatwire-server: %v", err)
	}
}

// exitf writes a formatted error to stderr and exits with code 1.
func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
