package integration

import (
	"testing"
	"time"

	"github.com/chatwire/chatwire/test/testhelpers"
)

// TestBanCommandModeratesBroadcasts runs the full moderation scenario: while
// "bob" is banned, his broadcasts reach nobody — himself included — until any
// participant issues the unban.
func TestBanCommandModeratesBroadcasts(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	alice := testhelpers.DialTCP(t, relay.TCPAddr, "alice")
	bob := testhelpers.DialTCP(t, relay.TCPAddr, "bob")
	carol := testhelpers.DialTCP(t, relay.TCPAddr, "carol")

	// The command is itself an ordinary broadcast from an unbanned sender.
	alice.Send("ban bob")
	carol.WaitFor("ban bob", 2*time.Second)
	bob.WaitFor("ban bob", 2*time.Second)

	if !relay.Srv.Registry().Banned("bob") {
		t.Fatal("ban command did not register")
	}

	bob.Send("can anyone hear me")
	carol.ExpectSilence(300 * time.Millisecond)
	bob.ExpectSilence(300 * time.Millisecond)

	// Any sender may lift the ban.
	carol.Send("unban bob")
	alice.WaitFor("unban bob", 2*time.Second)

	if relay.Srv.Registry().Banned("bob") {
		t.Fatal("unban command did not register")
	}

	bob.Send("bob is back")
	for _, c := range []*testhelpers.Client{alice, bob, carol} {
		msg := c.WaitFor("bob is back", 2*time.Second)
		if msg.SenderID != bob.ID {
			t.Errorf("client %d received sender id %d, want %d", c.ID, msg.SenderID, bob.ID)
		}
	}
}
