// Package integration contains end-to-end tests that exercise the relay over
// real TCP and WebSocket connections.
package integration

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/chatwire/chatwire/test/testhelpers"
)

func TestWelcomeCarriesAssignedID(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	alice := testhelpers.DialTCP(t, relay.TCPAddr, "alice")

	if alice.ID <= 0 {
		t.Errorf("assigned id = %d, want > 0", alice.ID)
	}
}

func TestDuplicateUsernameRejected(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	testhelpers.DialTCP(t, relay.TCPAddr, "alice")
	rejection := testhelpers.DialTCPExpectReject(t, relay.TCPAddr, "alice")

	if !strings.Contains(rejection.Body, "alice") {
		t.Errorf("rejection %q does not name the conflicting username", rejection.Body)
	}
	if rejection.SenderID != 0 {
		t.Errorf("rejection carries sender id %d, want 0", rejection.SenderID)
	}
}

func TestHealthEndpointReportsSessions(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	testhelpers.DialTCP(t, relay.TCPAddr, "alice")
	testhelpers.DialTCP(t, relay.TCPAddr, "bob")

	url := fmt.Sprintf("http://%s/", relay.Srv.HTTPAddr())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read health response: %v", err)
	}
	if !strings.Contains(string(data), "2 sessions") {
		t.Errorf("health body %q does not report 2 sessions", data)
	}
}
