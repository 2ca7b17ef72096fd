// Package supervisor implements the Server Supervisor (spec.md §4.2): the
// per-server lifecycle state machine, discovery trigger, health checks, and
// auto-restart with backoff.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/himorishige/hatago-mcp-hub/internal/config"
	"github.com/himorishige/hatago-mcp-hub/internal/connector"
	"github.com/himorishige/hatago-mcp-hub/internal/downstream"
	"github.com/himorishige/hatago-mcp-hub/internal/registry"
	"github.com/himorishige/hatago-mcp-hub/pkg/logging"
)

// DefaultMaxHealthCheckFailures is the consecutive-failure budget before a
// connected server enters restarting (spec.md §4.2).
const DefaultMaxHealthCheckFailures = 3

// DefaultMaxAutoRestartAttempts is the restart attempt budget before a
// server gives up and transitions to crashed.
const DefaultMaxAutoRestartAttempts = 3

// Notifier receives toolset-mutation notifications the supervisor emits. The
// Notification Relay implements this; the supervisor depends only on the
// interface to avoid an ownership cycle (spec.md §9).
type Notifier interface {
	EmitToolsListChanged()
}

// NotificationHandler receives raw downstream JSON-RPC notifications
// (progress, list-changed) forwarded from a connected client. The Hub
// Coordinator wires this to the Notification Relay.
type NotificationHandler func(serverID string, notification mcp.JSONRPCNotification)

// Supervisor owns every Record and the three capability registries.
type Supervisor struct {
	mu      sync.RWMutex
	servers map[string]*Record

	Tools     *registry.Registry[mcp.Tool]
	Resources *registry.Registry[mcp.Resource]
	Prompts   *registry.Registry[mcp.Prompt]
	Toolset   *registry.Toolset

	notifier            Notifier
	notificationHandler NotificationHandler

	maxHealthCheckFailures int
	maxAutoRestartAttempts int

	globalTimeouts config.Timeouts
}

// New builds a Supervisor using namer to derive public names for every
// registry.
func New(namer *registry.Namer, notifier Notifier, notificationHandler NotificationHandler) *Supervisor {
	return &Supervisor{
		servers:                make(map[string]*Record),
		Tools:                  registry.New(namer, func(t mcp.Tool) string { return t.Name }),
		Resources:              registry.New(namer, func(r mcp.Resource) string { return r.URI }),
		Prompts:                registry.New(namer, func(p mcp.Prompt) string { return p.Name }),
		Toolset:                registry.NewToolset(),
		notifier:               notifier,
		notificationHandler:    notificationHandler,
		maxHealthCheckFailures: DefaultMaxHealthCheckFailures,
		maxAutoRestartAttempts: DefaultMaxAutoRestartAttempts,
	}
}

// SetGlobalTimeouts installs the config's top-level timeouts block as the
// fallback applied to any server entry that does not set its own override
// (spec.md §6: connectMs/requestMs/keepAliveMs).
func (s *Supervisor) SetGlobalTimeouts(t config.Timeouts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalTimeouts = t
}

// applyGlobalTimeouts fills in any of entry's connect/request/keep-alive
// timeouts left at zero from the global timeouts block, so a server that
// omits its own override still gets the config's defaults.
func (s *Supervisor) applyGlobalTimeouts(entry config.ServerEntry) config.ServerEntry {
	s.mu.RLock()
	g := s.globalTimeouts
	s.mu.RUnlock()

	if entry.ConnectTimeoutMs <= 0 && g.ConnectMs > 0 {
		entry.ConnectTimeoutMs = g.ConnectMs
	}
	if entry.RequestTimeoutMs <= 0 && g.RequestMs > 0 {
		entry.RequestTimeoutMs = g.RequestMs
	}
	if entry.KeepAliveTimeoutMs <= 0 && g.KeepAliveMs > 0 {
		entry.KeepAliveTimeoutMs = g.KeepAliveMs
	}
	return entry
}

// Get returns the record for id, or nil if unknown.
func (s *Supervisor) Get(id string) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.servers[id]
}

// All returns every record, in no particular order.
func (s *Supervisor) All() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.servers))
	for _, r := range s.servers {
		out = append(out, r)
	}
	return out
}

// AddServer connects id, runs discovery, and registers its capabilities.
// suppressListChanged is set by eager startup so the supervisor can emit a
// single batched notification instead of one per server (spec.md §4.6).
func (s *Supervisor) AddServer(ctx context.Context, id string, entry config.ServerEntry, suppressListChanged bool) error {
	entry = s.applyGlobalTimeouts(entry)
	record := &Record{ID: id, Spec: entry, Status: StateConnecting}
	s.mu.Lock()
	s.servers[id] = record
	s.mu.Unlock()

	client, err := connector.Connect(ctx, id, entry)
	if err != nil {
		s.mu.Lock()
		record.Status = StateError
		record.LastError = err
		s.mu.Unlock()
		logging.Warn("supervisor", "server %s failed to connect: %v", id, err)
		return fmt.Errorf("connect server %s: %w", id, err)
	}

	if s.notificationHandler != nil {
		client.OnNotification(func(n mcp.JSONRPCNotification) {
			s.notificationHandler(id, n)
		})
	}

	s.mu.Lock()
	record.Client = client
	record.Status = StateConnected
	s.mu.Unlock()

	s.discover(ctx, record)

	if !suppressListChanged && s.notifier != nil {
		s.notifier.EmitToolsListChanged()
	}

	logging.Info("supervisor", "server %s connected (%d tools, %d resources, %d prompts)", id, len(record.Tools), len(record.Resources), len(record.Prompts))
	return nil
}

// discover runs tools/list, resources/list, prompts/list in sequence and
// registers the results. A -32601 on resources/list or prompts/list is
// recorded as capability-unsupported rather than an error (spec.md §4.2).
func (s *Supervisor) discover(ctx context.Context, record *Record) {
	tools, err := record.Client.ListTools(ctx)
	if err != nil {
		logging.Warn("supervisor", "server %s: tools/list failed: %v", record.ID, err)
		tools = nil
	}

	s.mu.Lock()
	record.Tools = tools
	s.mu.Unlock()
	logRegistrationErrors(record.ID, "tools", s.Tools.RegisterServer(record.ID, tools))
	s.bumpToolset()

	if !record.resourcesCircuitOpen {
		resources, err := record.Client.ListResources(ctx)
		switch {
		case err == nil:
			s.mu.Lock()
			record.Resources = resources
			record.consecutiveResourceFailures = 0
			s.mu.Unlock()
			logRegistrationErrors(record.ID, "resources", s.Resources.RegisterServer(record.ID, resources))
		case downstream.IsMethodNotFound(err):
			s.mu.Lock()
			record.ResourcesUnsupported = true
			s.mu.Unlock()
			logging.Debug("supervisor", "server %s: resources/list unsupported", record.ID)
		default:
			s.mu.Lock()
			record.consecutiveResourceFailures++
			if record.consecutiveResourceFailures >= maxConsecutiveResourceFailures {
				record.resourcesCircuitOpen = true
				logging.Warn("supervisor", "server %s: resources/list circuit breaker tripped after %d failures", record.ID, record.consecutiveResourceFailures)
			}
			s.mu.Unlock()
		}
	}

	prompts, err := record.Client.ListPrompts(ctx)
	switch {
	case err == nil:
		s.mu.Lock()
		record.Prompts = prompts
		s.mu.Unlock()
		logRegistrationErrors(record.ID, "prompts", s.Prompts.RegisterServer(record.ID, prompts))
	case downstream.IsMethodNotFound(err):
		s.mu.Lock()
		record.PromptsUnsupported = true
		s.mu.Unlock()
		logging.Debug("supervisor", "server %s: prompts/list unsupported", record.ID)
	default:
		logging.Warn("supervisor", "server %s: prompts/list failed: %v", record.ID, err)
	}
}

// logRegistrationErrors reports name collisions a RegisterServer call
// rejected: the colliding entry is dropped but registration of every other
// item still succeeds (spec.md §3, §8: "no collisions survive registration").
func logRegistrationErrors(serverID, kind string, errs []error) {
	for _, err := range errs {
		logging.Warn("supervisor", "server %s: %s registration: %v", serverID, kind, err)
	}
}

func (s *Supervisor) bumpToolset() {
	entries := s.Tools.GetAll()
	descriptors := make([]registry.ToolDescriptor, len(entries))
	for i, e := range entries {
		descriptors[i] = registry.ToolDescriptor{PublicName: e.PublicName, Description: e.Item.Description}
	}
	s.Toolset.Bump(descriptors)
}

// RemoveServer closes the client and clears every registry entry it owned.
func (s *Supervisor) RemoveServer(id string) error {
	s.mu.Lock()
	record, ok := s.servers[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("server %s: not found", id)
	}
	delete(s.servers, id)
	s.mu.Unlock()

	s.Tools.ClearServer(id)
	s.Resources.ClearServer(id)
	s.Prompts.ClearServer(id)
	s.bumpToolset()

	if record.Client != nil {
		if err := record.Client.Close(); err != nil {
			logging.Warn("supervisor", "server %s: error closing client: %v", id, err)
		}
	}

	record.Status = StateStopped
	if s.notifier != nil {
		s.notifier.EmitToolsListChanged()
	}
	return nil
}

// StartEager connects every eager-start entry in entries concurrently and
// emits exactly one tools/list_changed notification after every connect has
// settled, regardless of how many servers were eager (spec.md §4.6, §8).
func (s *Supervisor) StartEager(ctx context.Context, entries map[string]config.ServerEntry) error {
	eg, egCtx := errgroup.WithContext(ctx)

	for id, entry := range entries {
		if entry.Disabled || entry.EffectiveStartMode() != config.StartEager {
			continue
		}
		id, entry := id, entry
		eg.Go(func() error {
			if err := s.AddServer(egCtx, id, entry, true); err != nil {
				// AddServer already recorded the error on the record; eager
				// startup does not abort the rest of the batch for one
				// server's failure.
				return nil
			}
			return nil
		})
	}

	_ = eg.Wait()

	if s.notifier != nil {
		s.notifier.EmitToolsListChanged()
	}
	return nil
}
