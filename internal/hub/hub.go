// Package hub implements the Hub Coordinator (spec.md §4.4): the component
// that owns the Server Supervisor, the Notification Relay, and the Session
// Manager, and exposes the single surface the Upstream Gateway's dispatcher
// drives (dispatcher.Hub).
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/himorishige/hatago-mcp-hub/internal/config"
	"github.com/himorishige/hatago-mcp-hub/internal/dispatcher"
	"github.com/himorishige/hatago-mcp-hub/internal/downstream"
	"github.com/himorishige/hatago-mcp-hub/internal/registry"
	"github.com/himorishige/hatago-mcp-hub/internal/relay"
	"github.com/himorishige/hatago-mcp-hub/internal/session"
	"github.com/himorishige/hatago-mcp-hub/internal/supervisor"
	"github.com/himorishige/hatago-mcp-hub/pkg/logging"
)

// serverName and serverVersion identify the hub itself in the initialize
// handshake (spec.md §4.4).
const (
	serverName    = "hatago-mcp-hub"
	serverVersion = "0.1.0"
)

// defaultCallTimeout bounds a tools/call when a server entry does not set
// its own requestTimeoutMs (spec.md §4.5: "min(requestTimeout, 30s)").
const defaultCallTimeout = 30 * time.Second

// Hub wires the Server Supervisor, the Notification Relay, and the Session
// Manager together and implements dispatcher.Hub. It is the only type the
// Upstream Gateway constructs against.
type Hub struct {
	Supervisor *supervisor.Supervisor
	Relay      *relay.Relay
	Sessions   *session.Manager

	mu      sync.RWMutex
	entries map[string]config.ServerEntry
}

// New builds a Hub from a loaded Config. It does not connect to any
// downstream server — call StartEager to do that.
func New(cfg *config.Config) *Hub {
	strategy := cfg.NamingStrategy
	if strategy == "" {
		strategy = config.NamingPrefix
	}
	separator := cfg.Separator
	if separator == "" {
		separator = "_"
	}
	namer := registry.NewNamer(strategy, separator)

	r := relay.New()
	h := &Hub{
		Relay:    r,
		Sessions: session.New(0),
		entries:  make(map[string]config.ServerEntry, len(cfg.MCPServers)),
	}
	h.Supervisor = supervisor.New(namer, r, r.HandleDownstream)
	if cfg.Timeouts != nil {
		h.Supervisor.SetGlobalTimeouts(*cfg.Timeouts)
	}

	for id, entry := range cfg.MCPServers {
		if !config.MatchesTags(entry, cfg.Tags) {
			logging.Debug("hub", "server %s excluded by tag filter", id)
			continue
		}
		h.entries[id] = entry
	}
	return h
}

// StartEager connects every eager-start server concurrently (spec.md §4.6).
func (h *Hub) StartEager(ctx context.Context) error {
	h.mu.RLock()
	entries := make(map[string]config.ServerEntry, len(h.entries))
	for id, e := range h.entries {
		entries[id] = e
	}
	h.mu.RUnlock()
	return h.Supervisor.StartEager(ctx, entries)
}

// RunHealthChecks drives the health-check/auto-restart loop until ctx is
// cancelled, sleeping interval between passes. It is meant to run in its own
// goroutine for the lifetime of the process.
func (h *Hub) RunHealthChecks(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = supervisor.DefaultHealthCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Supervisor.RunHealthChecks(ctx)
		}
	}
}

// ServerInfo implements dispatcher.Hub.
func (h *Hub) ServerInfo() mcp.Implementation {
	return mcp.Implementation{Name: serverName, Version: serverVersion}
}

// Capabilities implements dispatcher.Hub: the hub always advertises
// list-changed support for all three capability kinds, since the Server
// Supervisor can add or remove servers at any time (spec.md §4.6).
func (h *Hub) Capabilities() dispatcher.Capabilities {
	return dispatcher.Capabilities{
		Tools:     &dispatcher.ListChangedCapability{ListChanged: true},
		Resources: &dispatcher.ListChangedCapability{ListChanged: true},
		Prompts:   &dispatcher.ListChangedCapability{ListChanged: true},
	}
}

// TouchSession implements dispatcher.Hub, recording the client's declared
// capabilities against its session on the initialize call.
func (h *Hub) TouchSession(sessionID string, clientCapabilities json.RawMessage) {
	if sessionID == "" {
		return
	}
	h.Sessions.Touch(sessionID, clientCapabilities)
}

// ListTools implements dispatcher.Hub: the union catalog with every tool's
// name rewritten to its public name, plus the current toolset revision/hash
// (spec.md §4.3, §4.4).
func (h *Hub) ListTools() ([]mcp.Tool, string, int64) {
	entries := h.Supervisor.Tools.GetAll()
	tools := make([]mcp.Tool, len(entries))
	for i, e := range entries {
		tool := e.Item
		tool.Name = e.PublicName
		tools[i] = tool
	}
	return tools, h.Supervisor.Toolset.Hash(), h.Supervisor.Toolset.Revision()
}

// resolveOrConnect resolves a public tool/resource/prompt name through reg,
// lazily connecting any configured lazy-start server that has not been
// connected yet when the name is not yet registered (spec.md §4.2: "connect
// on demand for startMode: lazy"). Registries only hold entries for servers
// that have already completed discovery, so a lazy server's tools are
// invisible until its first call forces a connect.
func resolveOrConnect[T any](ctx context.Context, h *Hub, reg *registry.Registry[T], publicName string) (serverID, originalKey string, ok bool) {
	if serverID, originalKey, ok = reg.Resolve(publicName); ok {
		return serverID, originalKey, true
	}

	h.mu.RLock()
	candidates := make([]string, 0)
	for id, entry := range h.entries {
		if entry.Disabled || entry.EffectiveStartMode() != config.StartLazy {
			continue
		}
		if h.Supervisor.Get(id) != nil {
			continue
		}
		candidates = append(candidates, id)
	}
	entries := h.entries
	h.mu.RUnlock()

	for _, id := range candidates {
		entry := entries[id]
		if err := h.Supervisor.AddServer(ctx, id, entry, false); err != nil {
			logging.Warn("hub", "lazy connect of %s failed: %v", id, err)
			continue
		}
		if serverID, originalKey, ok = reg.Resolve(publicName); ok {
			return serverID, originalKey, true
		}
	}

	return "", "", false
}

// CallTool implements dispatcher.Hub: resolve the public tool name, connect
// its owning server on demand if needed, mint a progress token for the
// downstream call if the upstream one carried one, and route the call
// (spec.md §4.5).
func (h *Hub) CallTool(ctx context.Context, name string, arguments map[string]interface{}, upstreamProgressToken interface{}) (*mcp.CallToolResult, error) {
	serverID, originalName, ok := resolveOrConnect(ctx, h, h.Supervisor.Tools, name)
	if !ok {
		return nil, &dispatcher.ToolCallError{Code: dispatcher.CodeMethodNotFound, Message: fmt.Sprintf("unknown tool: %s", name)}
	}

	record := h.Supervisor.Get(serverID)
	if record == nil || record.Client == nil {
		return nil, &dispatcher.ToolCallError{Code: dispatcher.CodeInternalError, Message: fmt.Sprintf("server %s is not connected", serverID)}
	}

	timeout := callTimeout(record.Spec)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var downstreamToken interface{}
	if upstreamProgressToken != nil {
		token := h.Relay.MintProgressToken(serverID, upstreamProgressToken)
		downstreamToken = token
		defer h.Relay.ResolveCall(token)
	}

	result, err := record.Client.CallTool(callCtx, originalName, arguments, downstreamToken)
	if err != nil {
		return nil, mapDownstreamError(err, timeout)
	}
	return result, nil
}

func callTimeout(entry config.ServerEntry) time.Duration {
	if entry.RequestTimeoutMs <= 0 {
		return defaultCallTimeout
	}
	d := time.Duration(entry.RequestTimeoutMs) * time.Millisecond
	if d > defaultCallTimeout {
		return defaultCallTimeout
	}
	return d
}

// mapDownstreamError translates a downstream client error into the
// dispatcher's upstream error shape. timeout is the call timeout that was
// actually in effect, used to render spec.md §4.5's exact timeout message
// ("Tool call timed out after Nms"); pass 0 when no specific per-call timeout
// applies.
func mapDownstreamError(err error, timeout time.Duration) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg := "downstream call timed out"
		if timeout > 0 {
			msg = fmt.Sprintf("Tool call timed out after %dms", timeout.Milliseconds())
		}
		return &dispatcher.ToolCallError{Code: dispatcher.CodeInternalError, Message: msg}
	case downstream.IsMethodNotFound(err):
		return &dispatcher.ToolCallError{Code: dispatcher.CodeMethodNotFound, Message: err.Error()}
	default:
		return err
	}
}

// ListResources implements dispatcher.Hub: the union catalog plus the
// synthetic hatago://servers resource (spec.md §4.4, §6).
func (h *Hub) ListResources() []mcp.Resource {
	entries := h.Supervisor.Resources.GetAll()
	resources := make([]mcp.Resource, 0, len(entries)+1)
	for _, e := range entries {
		res := e.Item
		res.URI = e.PublicName
		resources = append(resources, res)
	}
	resources = append(resources, mcp.Resource{
		URI:         registry.ServersResourceURI,
		Name:        "Servers",
		Description: "Current status, tools, resources, and prompts for every configured downstream server",
		MIMEType:    "application/json",
	})
	return resources
}

// ReadResource implements dispatcher.Hub.
func (h *Hub) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	if uri == registry.ServersResourceURI {
		return h.readServersResource()
	}

	serverID, originalURI, ok := resolveOrConnect(ctx, h, h.Supervisor.Resources, uri)
	if !ok {
		return nil, &dispatcher.ToolCallError{Code: dispatcher.CodeMethodNotFound, Message: fmt.Sprintf("unknown resource: %s", uri)}
	}

	record := h.Supervisor.Get(serverID)
	if record == nil || record.Client == nil {
		return nil, &dispatcher.ToolCallError{Code: dispatcher.CodeInternalError, Message: fmt.Sprintf("server %s is not connected", serverID)}
	}

	result, err := record.Client.ReadResource(ctx, originalURI)
	if err != nil {
		return nil, mapDownstreamError(err, 0)
	}
	return result, nil
}

func (h *Hub) readServersResource() (*mcp.ReadResourceResult, error) {
	records := h.Supervisor.All()
	summaries := make([]registry.ServerSummary, len(records))
	for i, r := range records {
		summaries[i] = summarize(r)
	}
	text, err := registry.RenderServersResource(summaries)
	if err != nil {
		return nil, &dispatcher.ToolCallError{Code: dispatcher.CodeInternalError, Message: "failed to render servers resource"}
	}
	return &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      registry.ServersResourceURI,
				MIMEType: "application/json",
				Text:     text,
			},
		},
	}, nil
}

func summarize(r *supervisor.Record) registry.ServerSummary {
	s := registry.ServerSummary{
		ID:     r.ID,
		Status: string(r.Status),
		Type:   r.TypeLabel(),
	}
	if r.Spec.IsRemote() {
		url := r.Spec.URL
		s.URL = &url
	} else {
		cmd := r.Spec.Command
		s.Command = &cmd
	}
	if r.LastError != nil {
		msg := r.LastError.Error()
		s.Error = &msg
	}
	s.Tools = namesOf(r.Tools, func(t mcp.Tool) string { return t.Name })
	s.Resources = namesOf(r.Resources, func(res mcp.Resource) string { return res.URI })
	s.Prompts = namesOf(r.Prompts, func(p mcp.Prompt) string { return p.Name })
	return s
}

func namesOf[T any](items []T, key func(T) string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = key(item)
	}
	return out
}

// ListResourceTemplates implements dispatcher.Hub as a best-effort fan-out:
// every connected server is asked in turn, a -32601 (or any other error) is
// swallowed, and results are not routed through a registry since resource
// templates have no single canonical URI to key on (spec.md §4.4).
func (h *Hub) ListResourceTemplates(ctx context.Context) []mcp.ResourceTemplate {
	var out []mcp.ResourceTemplate
	for _, record := range h.Supervisor.All() {
		if record.Status != supervisor.StateConnected || record.Client == nil {
			continue
		}
		templates, err := record.Client.ListResourceTemplates(ctx)
		if err != nil {
			if !downstream.IsMethodNotFound(err) {
				logging.Debug("hub", "server %s: resources/templates/list failed: %v", record.ID, err)
			}
			continue
		}
		out = append(out, templates...)
	}
	return out
}

// ListPrompts implements dispatcher.Hub.
func (h *Hub) ListPrompts() []mcp.Prompt {
	entries := h.Supervisor.Prompts.GetAll()
	prompts := make([]mcp.Prompt, len(entries))
	for i, e := range entries {
		prompt := e.Item
		prompt.Name = e.PublicName
		prompts[i] = prompt
	}
	return prompts
}

// GetPrompt implements dispatcher.Hub.
func (h *Hub) GetPrompt(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.GetPromptResult, error) {
	serverID, originalName, ok := resolveOrConnect(ctx, h, h.Supervisor.Prompts, name)
	if !ok {
		return nil, &dispatcher.ToolCallError{Code: dispatcher.CodeMethodNotFound, Message: fmt.Sprintf("unknown prompt: %s", name)}
	}

	record := h.Supervisor.Get(serverID)
	if record == nil || record.Client == nil {
		return nil, &dispatcher.ToolCallError{Code: dispatcher.CodeInternalError, Message: fmt.Sprintf("server %s is not connected", serverID)}
	}

	result, err := record.Client.GetPrompt(ctx, originalName, arguments)
	if err != nil {
		return nil, mapDownstreamError(err, 0)
	}
	return result, nil
}

var _ dispatcher.Hub = (*Hub)(nil)
