package downstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClientInterfaceCompliance verifies every concrete transport satisfies
// Client, mirroring the compile-time var assertions at the bottom of
// client.go.
func TestClientInterfaceCompliance(t *testing.T) {
	var _ Client = (*StdioClient)(nil)
	var _ Client = (*SSEClient)(nil)
	var _ Client = (*StreamableHTTPClient)(nil)
}

func TestNewStdioClient(t *testing.T) {
	env := map[string]string{"KEY": "value"}
	client := NewStdioClient("fs", "echo", []string{"hello"}, env, "/tmp")

	require.NotNil(t, client)
	assert.Equal(t, "echo", client.command)
	assert.Equal(t, []string{"hello"}, client.args)
	assert.Equal(t, env, client.env)
	assert.Equal(t, "/tmp", client.cwd)
	assert.False(t, client.connected)
}

func TestNewSSEClient(t *testing.T) {
	headers := map[string]string{"Authorization": "Bearer token"}
	client := NewSSEClient("remote", "http://example.com/sse", headers)

	require.NotNil(t, client)
	assert.Equal(t, "http://example.com/sse", client.url)
	assert.Equal(t, headers, client.headers)
	assert.False(t, client.connected)
}

func TestNewStreamableHTTPClient(t *testing.T) {
	client := NewStreamableHTTPClient("remote", "http://example.com/mcp", nil, 0)

	require.NotNil(t, client)
	assert.Equal(t, "http://example.com/mcp", client.url)
	assert.False(t, client.connected)
	assert.Zero(t, client.keepAlive)
}

func TestNewStreamableHTTPClient_WithKeepAlive(t *testing.T) {
	client := NewStreamableHTTPClient("remote", "http://example.com/mcp", nil, 30*time.Second)

	assert.Equal(t, 30*time.Second, client.keepAlive)
}

// TestBase_UnconnectedCallsFail exercises checkConnected through the shared
// base without a real transport underneath.
func TestBase_UnconnectedCallsFail(t *testing.T) {
	client := NewStdioClient("fs", "echo", nil, nil, "")

	_, err := client.ListTools(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	err = client.Ping(context.Background())
	require.Error(t, err)
}

// TestStreamableHTTPClient_CloseWithoutConnectIsSafe ensures Close tolerates
// being called before Initialize (no keep-alive goroutine was ever started).
func TestStreamableHTTPClient_CloseWithoutConnectIsSafe(t *testing.T) {
	client := NewStreamableHTTPClient("remote", "http://example.com/mcp", nil, time.Second)

	require.NoError(t, client.Close())
}
