package integration

import (
	"net/http"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/chatwire/chatwire/test/testhelpers"
)

// Browser connections carry an Origin header, which must match the
// configured allowlist; non-browser clients send none and are let through.
func TestWebSocketOriginChecks(t *testing.T) {
	relay := testhelpers.StartRelay(t)

	// Disallowed origin: the upgrade is refused.
	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	ws, resp, err := websocket.DefaultDialer.Dial(relay.WSURL, header)
	if err == nil {
		_ = ws.Close()
		t.Fatal("upgrade succeeded for a disallowed origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("upgrade status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	// No Origin header: a plain client connects fine.
	testhelpers.DialWS(t, relay.WSURL, "alice")
}
