package integration

import (
	"testing"
	"time"

	"github.com/chatwire/chatwire/test/testhelpers"
)

// TestWebSocketAndTCPInterop: both transports feed the same registry, so a
// WebSocket client and a TCP client chat with each other.
func TestWebSocketAndTCPInterop(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	alice := testhelpers.DialTCP(t, relay.TCPAddr, "alice")
	bob := testhelpers.DialWS(t, relay.WSURL, "bob")

	if bob.ID <= alice.ID {
		t.Errorf("ids not increasing across transports: tcp=%d ws=%d", alice.ID, bob.ID)
	}

	bob.Send("hello from the websocket side")
	msg := alice.WaitFor("websocket side", 2*time.Second)
	if msg.SenderID != bob.ID {
		t.Errorf("sender id = %d, want %d", msg.SenderID, bob.ID)
	}

	alice.Send("hello from tcp")
	msg = bob.WaitFor("hello from tcp", 2*time.Second)
	if msg.SenderID != alice.ID {
		t.Errorf("sender id = %d, want %d", msg.SenderID, alice.ID)
	}
}

// A username is unique across transports too.
func TestDuplicateUsernameAcrossTransports(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	testhelpers.DialWS(t, relay.WSURL, "alice")
	rejection := testhelpers.DialTCPExpectReject(t, relay.TCPAddr, "alice")

	if rejection.SenderID != 0 {
		t.Errorf("rejection carries sender id %d, want 0", rejection.SenderID)
	}
}
