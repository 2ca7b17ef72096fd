package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	Name        string
	Description string
}

func toolKey(t fakeTool) string { return t.Name }

func TestRegistry_PrefixStrategy_NoCollision(t *testing.T) {
	namer := NewNamer(StrategyPrefix, "_")
	reg := New(namer, toolKey)

	errs := reg.RegisterServer("fs", []fakeTool{{Name: "read"}, {Name: "write"}})
	assert.Empty(t, errs)
	errs = reg.RegisterServer("web", []fakeTool{{Name: "fetch"}})
	assert.Empty(t, errs)

	serverID, originalKey, ok := reg.Resolve("fs_read")
	require.True(t, ok)
	assert.Equal(t, "fs", serverID)
	assert.Equal(t, "read", originalKey)

	serverID, originalKey, ok = reg.Resolve("web_fetch")
	require.True(t, ok)
	assert.Equal(t, "web", serverID)
	assert.Equal(t, "fetch", originalKey)

	assert.Equal(t, 3, reg.Len())
}

func TestRegistry_NoneStrategy_CollisionFailsLaterEntry(t *testing.T) {
	namer := NewNamer(StrategyNone, "")
	reg := New(namer, toolKey)

	errs := reg.RegisterServer("a", []fakeTool{{Name: "shared"}})
	assert.Empty(t, errs)

	errs = reg.RegisterServer("b", []fakeTool{{Name: "shared"}})
	require.Len(t, errs, 1)
	var collision *CollisionError
	require.ErrorAs(t, errs[0], &collision)
	assert.Equal(t, "a", collision.ExistingOwner)
	assert.Equal(t, "b", collision.RejectedOwner)

	// The original owner's entry survives untouched.
	serverID, _, ok := reg.Resolve("shared")
	require.True(t, ok)
	assert.Equal(t, "a", serverID)
}

func TestRegistry_RegisterServer_ReplacesInPlace(t *testing.T) {
	namer := NewNamer(StrategyPrefix, "_")
	reg := New(namer, toolKey)

	reg.RegisterServer("fs", []fakeTool{{Name: "read"}, {Name: "write"}})
	reg.RegisterServer("fs", []fakeTool{{Name: "read"}})

	_, _, ok := reg.Resolve("fs_write")
	assert.False(t, ok, "write should be gone after replace-in-place")

	_, _, ok = reg.Resolve("fs_read")
	assert.True(t, ok)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_ClearServer(t *testing.T) {
	namer := NewNamer(StrategyPrefix, "_")
	reg := New(namer, toolKey)

	reg.RegisterServer("fs", []fakeTool{{Name: "read"}})
	reg.ClearServer("fs")

	assert.Equal(t, 0, reg.Len())
	_, _, ok := reg.Resolve("fs_read")
	assert.False(t, ok)
}

func TestToolset_HashStableUnderReordering(t *testing.T) {
	ts1 := NewToolset()
	ts1.Bump([]ToolDescriptor{
		{PublicName: "fs_read", Description: "reads a file"},
		{PublicName: "fs_write", Description: "writes a file"},
	})

	ts2 := NewToolset()
	ts2.Bump([]ToolDescriptor{
		{PublicName: "fs_write", Description: "writes a file"},
		{PublicName: "fs_read", Description: "reads a file"},
	})

	assert.Equal(t, ts1.Hash(), ts2.Hash())
	assert.Len(t, ts1.Hash(), 16)
}

func TestToolset_RevisionMonotonic(t *testing.T) {
	ts := NewToolset()
	assert.Equal(t, int64(0), ts.Revision())

	ts.Bump([]ToolDescriptor{{PublicName: "a", Description: "d"}})
	assert.Equal(t, int64(1), ts.Revision())

	ts.Bump([]ToolDescriptor{{PublicName: "a", Description: "d"}, {PublicName: "b", Description: "e"}})
	assert.Equal(t, int64(2), ts.Revision())
}

func TestRenderServersResource(t *testing.T) {
	url := "https://example.com/mcp"
	doc, err := RenderServersResource([]ServerSummary{
		{ID: "web", Status: "connected", Type: "remote", URL: &url, Tools: []string{"fetch"}, Resources: []string{}, Prompts: []string{}},
	})
	require.NoError(t, err)
	assert.Contains(t, doc, `"total": 1`)
	assert.Contains(t, doc, `"id": "web"`)
}
