package supervisor

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himorishige/hatago-mcp-hub/internal/config"
	"github.com/himorishige/hatago-mcp-hub/internal/registry"
)

type countingNotifier struct {
	count int
}

func (n *countingNotifier) EmitToolsListChanged() { n.count++ }

func TestBumpToolset_RevisionAdvancesOnEachDiscovery(t *testing.T) {
	namer := registry.NewNamer(registry.StrategyPrefix, "_")
	notifier := &countingNotifier{}
	sup := New(namer, notifier, nil)

	sup.Tools.RegisterServer("fs", []mcp.Tool{{Name: "read", Description: "reads a file"}})
	sup.bumpToolset()

	assert.Equal(t, int64(1), sup.Toolset.Revision())
	assert.Len(t, sup.Toolset.Hash(), 16)
}

func TestRemoveServer_ClearsRegistriesAndNotifies(t *testing.T) {
	namer := registry.NewNamer(registry.StrategyPrefix, "_")
	notifier := &countingNotifier{}
	sup := New(namer, notifier, nil)

	sup.mu.Lock()
	sup.servers["fs"] = &Record{ID: "fs", Status: StateConnected}
	sup.mu.Unlock()
	sup.Tools.RegisterServer("fs", []mcp.Tool{{Name: "read"}})

	err := sup.RemoveServer("fs")
	require.NoError(t, err)

	assert.Equal(t, 0, sup.Tools.Len())
	assert.Equal(t, 1, notifier.count)
	assert.Nil(t, sup.Get("fs"))
}

func TestRemoveServer_UnknownServer(t *testing.T) {
	namer := registry.NewNamer(registry.StrategyPrefix, "_")
	sup := New(namer, nil, nil)

	err := sup.RemoveServer("missing")
	require.Error(t, err)
}

func TestStartEager_SkipsLazyAndDisabled(t *testing.T) {
	// StartEager filters purely on config before attempting any connection,
	// so an empty/lazy/disabled set should settle with no recorded servers
	// and still emit exactly one batched notification.
	namer := registry.NewNamer(registry.StrategyPrefix, "_")
	notifier := &countingNotifier{}
	sup := New(namer, notifier, nil)

	err := sup.StartEager(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.count, "exactly one list_changed after an eager batch, even an empty one")
	assert.Empty(t, sup.All())
}

func TestApplyGlobalTimeouts_FillsUnsetFieldsOnly(t *testing.T) {
	namer := registry.NewNamer(registry.StrategyPrefix, "_")
	sup := New(namer, nil, nil)
	sup.SetGlobalTimeouts(config.Timeouts{ConnectMs: 1000, RequestMs: 2000, KeepAliveMs: 3000})

	filled := sup.applyGlobalTimeouts(config.ServerEntry{})
	assert.Equal(t, int64(1000), filled.ConnectTimeoutMs)
	assert.Equal(t, int64(2000), filled.RequestTimeoutMs)
	assert.Equal(t, int64(3000), filled.KeepAliveTimeoutMs)

	override := sup.applyGlobalTimeouts(config.ServerEntry{RequestTimeoutMs: 500})
	assert.Equal(t, int64(1000), override.ConnectTimeoutMs, "global still fills the fields the entry left unset")
	assert.Equal(t, int64(500), override.RequestTimeoutMs, "the entry's own override is never replaced")
}

func TestRestartBackoffSchedule(t *testing.T) {
	assert.Equal(t, int64(0), restartBackoff(0).Milliseconds())
	assert.Equal(t, int64(5000), restartBackoff(1).Milliseconds())
	assert.Equal(t, int64(15000), restartBackoff(2).Milliseconds())
	assert.Equal(t, int64(30000), restartBackoff(5).Milliseconds())
}
