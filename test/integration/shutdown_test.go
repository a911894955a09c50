package integration

import (
	"testing"
	"time"

	"github.com/chatwire/chatwire/test/testhelpers"
)

// TestShutdownMessageStopsServer: a shutdown-typed message from any client
// stops the accept loops, closes every session, and Serve returns cleanly.
func TestShutdownMessageStopsServer(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	alice := testhelpers.DialTCP(t, relay.TCPAddr, "alice")
	bob := testhelpers.DialTCP(t, relay.TCPAddr, "bob")

	alice.Shutdown()

	select {
	case err := <-relay.Done:
		if err != nil {
			t.Fatalf("Serve returned %v, want nil after clean shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after the shutdown message")
	}

	bob.WaitClosed(2 * time.Second)
}
