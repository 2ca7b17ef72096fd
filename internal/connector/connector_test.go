package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himorishige/hatago-mcp-hub/internal/config"
	"github.com/himorishige/hatago-mcp-hub/internal/downstream"
)

func TestBuild_Stdio(t *testing.T) {
	client, err := Build("fs", config.ServerEntry{Command: "echo", Args: []string{"hello"}})

	require.NoError(t, err)
	assert.IsType(t, &downstream.StdioClient{}, client)
}

func TestBuild_StdioMissingCommand(t *testing.T) {
	client, err := Build("fs", config.ServerEntry{})

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "neither command nor url is set")
}

func TestBuild_SSE(t *testing.T) {
	client, err := Build("remote", config.ServerEntry{URL: "http://example.com/sse", Transport: config.TransportSSE})

	require.NoError(t, err)
	assert.IsType(t, &downstream.SSEClient{}, client)
}

func TestBuild_StreamableHTTP(t *testing.T) {
	client, err := Build("remote", config.ServerEntry{URL: "http://example.com/mcp", Transport: config.TransportStreamableHTTP})

	require.NoError(t, err)
	assert.IsType(t, &downstream.StreamableHTTPClient{}, client)
}

func TestBuild_UnknownTransport(t *testing.T) {
	client, err := Build("remote", config.ServerEntry{URL: "http://example.com", Transport: "carrier-pigeon"})

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "unknown transport")
}

// TestRetryBackoffSchedule asserts the 500·2^(attempt-1) schedule spec.md
// §4.2 names: the first retry (attempt 1) waits 500ms, the second (attempt 2)
// waits 1000ms, mirroring supervisor_test.go's TestRestartBackoffSchedule.
func TestRetryBackoffSchedule(t *testing.T) {
	assert.Equal(t, int64(500), retryBackoff(1).Milliseconds())
	assert.Equal(t, int64(1000), retryBackoff(2).Milliseconds())
	assert.Equal(t, int64(2000), retryBackoff(3).Milliseconds())
	assert.Equal(t, int64(4000), retryBackoff(4).Milliseconds())
}

func TestConnect_BuildErrorReturnedWithoutRetrying(t *testing.T) {
	start := time.Now()
	client, err := Connect(context.Background(), "fs", config.ServerEntry{})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Less(t, elapsed, 100*time.Millisecond, "a Build failure must not enter the retry loop")
}
