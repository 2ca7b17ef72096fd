// Package gateway implements the Upstream Gateway (spec.md §4.8): the HTTP
// and stdio surfaces that share one Dispatcher and present a single JSON-RPC
// endpoint to the upstream MCP client.
package gateway

import (
	"github.com/himorishige/hatago-mcp-hub/internal/dispatcher"
	"github.com/himorishige/hatago-mcp-hub/internal/relay"
	"github.com/himorishige/hatago-mcp-hub/internal/session"
)

// Gateway owns the shared Dispatcher and wires each transport surface's sink
// into the Notification Relay.
type Gateway struct {
	dispatcher *dispatcher.Dispatcher
	relay      *relay.Relay
	sessions   *session.Manager
}

// New builds a Gateway bound to d, using relay for notification fan-out and
// sessions for session lifecycle.
func New(d *dispatcher.Dispatcher, r *relay.Relay, sessions *session.Manager) *Gateway {
	return &Gateway{dispatcher: d, relay: r, sessions: sessions}
}
