// Package relay implements the Notification Relay (spec.md §4.6): forwarding
// downstream progress notifications to whichever upstream sinks are currently
// attached, and translating progress tokens so a downstream token is never
// leaked to the upstream client. Downstream notifications other than
// notifications/progress are logged and not forwarded; the hub's own
// tools/list_changed is broadcast through EmitToolsListChanged.
package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/himorishige/hatago-mcp-hub/pkg/logging"
)

// Sink receives a fully-formed JSON-RPC notification message, already
// serialized to bytes (stdio writes it as-is; the HTTP sink frames it as an
// SSE event).
type Sink interface {
	SendNotification(message []byte) error
}

// PendingProgress correlates a downstream progress token with the upstream
// token and server that originated the call (spec.md §3).
type PendingProgress struct {
	UpstreamToken   interface{}
	DownstreamToken string
	ServerID        string
	CreatedAt       time.Time
}

// Relay owns the attached sinks and the progress-token translation table.
type Relay struct {
	mu    sync.RWMutex
	sinks map[Sink]struct{}

	pendingMu sync.Mutex
	pending   map[string]*PendingProgress
}

// New builds an empty Relay.
func New() *Relay {
	return &Relay{
		sinks:   make(map[Sink]struct{}),
		pending: make(map[string]*PendingProgress),
	}
}

// AddSink attaches a notification sink (the stdio callback, or the
// streamable-HTTP transport once it has started).
func (r *Relay) AddSink(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[sink] = struct{}{}
}

// RemoveSink detaches a sink, e.g. on session teardown.
func (r *Relay) RemoveSink(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, sink)
}

func (r *Relay) broadcast(message []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sink := range r.sinks {
		if err := sink.SendNotification(message); err != nil {
			logging.Warn("relay", "sink delivery failed: %v", err)
		}
	}
}

// MintProgressToken allocates a fresh downstream token for an upstream
// tools/call that carried upstreamToken, and records the mapping so a later
// downstream progress notification can be translated back (spec.md §4.5:
// "always mint a fresh downstream token").
func (r *Relay) MintProgressToken(serverID string, upstreamToken interface{}) string {
	downstreamToken := uuid.NewString()
	r.pendingMu.Lock()
	r.pending[downstreamToken] = &PendingProgress{
		UpstreamToken:   upstreamToken,
		DownstreamToken: downstreamToken,
		ServerID:        serverID,
		CreatedAt:       time.Now(),
	}
	r.pendingMu.Unlock()
	return downstreamToken
}

// ResolveCall removes the pending entry for downstreamToken once its call
// has resolved or timed out, so later progress notifications for a reused
// token are not mis-attributed.
func (r *Relay) ResolveCall(downstreamToken string) {
	r.pendingMu.Lock()
	delete(r.pending, downstreamToken)
	r.pendingMu.Unlock()
}

// wireProgressParams is the subset of notifications/progress params the
// relay rewrites and re-serializes (spec.md §4.5: "preserving progress,
// total, and message").
type wireProgressParams struct {
	ProgressToken interface{} `json:"progressToken"`
	Progress      float64     `json:"progress"`
	Total         *float64    `json:"total,omitempty"`
	Message       string      `json:"message,omitempty"`
}

type wireNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// HandleDownstream is the callback the Server Supervisor registers for each
// connected client's OnNotification hook. serverID identifies which
// downstream server the notification came from.
func (r *Relay) HandleDownstream(serverID string, notification mcp.JSONRPCNotification) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("relay", fmt.Errorf("panic: %v", rec), "recovered handling notification from %s", serverID)
		}
	}()

	raw, err := json.Marshal(notification)
	if err != nil {
		logging.Warn("relay", "failed to marshal notification from %s: %v", serverID, err)
		return
	}

	var wire wireNotification
	if err := json.Unmarshal(raw, &wire); err != nil {
		logging.Warn("relay", "failed to parse notification envelope from %s: %v", serverID, err)
		return
	}

	if wire.Method != "notifications/progress" {
		// Non-progress notifications (e.g. a downstream's own
		// list_changed) are not part of the union toolset contract the
		// hub exposes and are logged only.
		logging.Debug("relay", "notification %s from %s (not forwarded)", wire.Method, serverID)
		return
	}

	var params wireProgressParams
	if err := json.Unmarshal(wire.Params, &params); err != nil {
		logging.Warn("relay", "failed to parse progress params from %s: %v", serverID, err)
		return
	}

	downstreamToken, ok := params.ProgressToken.(string)
	if !ok {
		logging.Debug("relay", "progress notification from %s has non-string token, dropping", serverID)
		return
	}

	r.pendingMu.Lock()
	pending, found := r.pending[downstreamToken]
	r.pendingMu.Unlock()

	if !found {
		logging.Debug("relay", "progress notification from %s for unknown token %s, logged only", serverID, downstreamToken)
		return
	}

	upstreamParams := wireProgressParams{
		ProgressToken: pending.UpstreamToken,
		Progress:      params.Progress,
		Total:         params.Total,
		Message:       params.Message,
	}
	upstreamParamsRaw, err := json.Marshal(upstreamParams)
	if err != nil {
		logging.Warn("relay", "failed to marshal translated progress params: %v", err)
		return
	}

	out := wireNotification{JSONRPC: "2.0", Method: "notifications/progress", Params: upstreamParamsRaw}
	outRaw, err := json.Marshal(out)
	if err != nil {
		logging.Warn("relay", "failed to marshal translated progress notification: %v", err)
		return
	}

	r.broadcast(outRaw)
}

// EmitToolsListChanged implements supervisor.Notifier: it builds and
// broadcasts the notifications/tools/list_changed message. The Server
// Supervisor is responsible for batching — it calls this once per startup
// batch, not once per server (spec.md §4.6).
func (r *Relay) EmitToolsListChanged() {
	out := wireNotification{JSONRPC: "2.0", Method: "notifications/tools/list_changed"}
	raw, err := json.Marshal(out)
	if err != nil {
		logging.Warn("relay", "failed to marshal tools/list_changed: %v", err)
		return
	}
	r.broadcast(raw)
}
