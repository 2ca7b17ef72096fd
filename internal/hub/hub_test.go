package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himorishige/hatago-mcp-hub/internal/config"
	"github.com/himorishige/hatago-mcp-hub/internal/dispatcher"
	"github.com/himorishige/hatago-mcp-hub/internal/supervisor"
)

func TestCallTimeout_DefaultWhenUnset(t *testing.T) {
	assert.Equal(t, defaultCallTimeout, callTimeout(config.ServerEntry{}))
}

func TestCallTimeout_CapsAtDefault(t *testing.T) {
	d := callTimeout(config.ServerEntry{RequestTimeoutMs: 60_000})
	assert.Equal(t, defaultCallTimeout, d)
}

func TestCallTimeout_HonorsSmallerOverride(t *testing.T) {
	d := callTimeout(config.ServerEntry{RequestTimeoutMs: 2_000})
	assert.Equal(t, 2*time.Second, d)
}

func TestMapDownstreamError_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	err := mapDownstreamError(ctx.Err(), 5*time.Second)
	var toolErr *dispatcher.ToolCallError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, dispatcher.CodeInternalError, toolErr.Code)
	assert.Equal(t, "Tool call timed out after 5000ms", toolErr.Message)
}

func TestMapDownstreamError_TimeoutWithoutKnownTimeoutUsesGenericMessage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	err := mapDownstreamError(ctx.Err(), 0)
	var toolErr *dispatcher.ToolCallError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "downstream call timed out", toolErr.Message)
}

func TestMapDownstreamError_MethodNotFound(t *testing.T) {
	err := mapDownstreamError(errors.New("rpc error: code = -32601 method not found"), time.Second)
	var toolErr *dispatcher.ToolCallError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, dispatcher.CodeMethodNotFound, toolErr.Code)
}

func TestMapDownstreamError_PassesThroughOther(t *testing.T) {
	original := errors.New("boom")
	assert.Equal(t, original, mapDownstreamError(original, time.Second))
}

func TestSummarize_RemoteServerRecordsURL(t *testing.T) {
	record := &supervisor.Record{
		ID:     "web",
		Status: supervisor.StateConnected,
		Spec:   config.ServerEntry{URL: "https://example.com/mcp", Transport: config.TransportStreamableHTTP},
		Tools:  []mcp.Tool{{Name: "fetch"}},
	}
	summary := summarize(record)
	require.NotNil(t, summary.URL)
	assert.Equal(t, "https://example.com/mcp", *summary.URL)
	assert.Nil(t, summary.Command)
	assert.Equal(t, "remote", summary.Type)
	assert.Equal(t, []string{"fetch"}, summary.Tools)
}

func TestSummarize_LocalServerRecordsCommand(t *testing.T) {
	record := &supervisor.Record{
		ID:     "fs",
		Status: supervisor.StateCrashed,
		Spec:   config.ServerEntry{Command: "npx"},
	}
	record.LastError = errors.New("exhausted 3 connect attempts")

	summary := summarize(record)
	require.NotNil(t, summary.Command)
	assert.Equal(t, "npx", *summary.Command)
	assert.Nil(t, summary.URL)
	assert.Equal(t, "local", summary.Type)
	require.NotNil(t, summary.Error)
	assert.Contains(t, *summary.Error, "exhausted")
}

func TestHub_Capabilities_AdvertisesAllThreeListChanged(t *testing.T) {
	h := New(&config.Config{})
	caps := h.Capabilities()
	require.NotNil(t, caps.Tools)
	require.NotNil(t, caps.Resources)
	require.NotNil(t, caps.Prompts)
	assert.True(t, caps.Tools.ListChanged)
}

func TestHub_ListTools_EmptyWithNoServers(t *testing.T) {
	h := New(&config.Config{})
	tools, hash, revision := h.ListTools()
	assert.Empty(t, tools)
	assert.NotEmpty(t, hash)
	assert.Equal(t, int64(0), revision)
}

func TestHub_CallTool_UnknownNameReturnsMethodNotFound(t *testing.T) {
	h := New(&config.Config{})
	_, err := h.CallTool(context.Background(), "does-not-exist", nil, nil)
	var toolErr *dispatcher.ToolCallError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, dispatcher.CodeMethodNotFound, toolErr.Code)
}
