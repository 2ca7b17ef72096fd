// Package connector builds a downstream.Client from a config.ServerEntry and
// connects it with bounded retries (spec.md §4.2 "Connector & Retry").
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/himorishige/hatago-mcp-hub/internal/config"
	"github.com/himorishige/hatago-mcp-hub/internal/downstream"
	"github.com/himorishige/hatago-mcp-hub/pkg/logging"
)

// DefaultMaxRetries is the connect attempt budget when a ServerEntry does not
// override it (spec.md §4.2: "at most maxRetries attempts (default 3)").
const DefaultMaxRetries = 3

// Build constructs the concrete downstream.Client for entry without
// connecting it. The Server Supervisor calls Connect separately so it can
// observe each retry as a state transition.
func Build(id string, entry config.ServerEntry) (downstream.Client, error) {
	if entry.IsRemote() {
		switch entry.Transport {
		case config.TransportSSE:
			return downstream.NewSSEClient(id, entry.URL, entry.Headers), nil
		case config.TransportHTTP, config.TransportStreamableHTTP:
			var keepAlive time.Duration
			if entry.KeepAliveTimeoutMs > 0 {
				keepAlive = time.Duration(entry.KeepAliveTimeoutMs) * time.Millisecond
			}
			return downstream.NewStreamableHTTPClient(id, entry.URL, entry.Headers, keepAlive), nil
		default:
			return nil, fmt.Errorf("server %s: unknown transport %q", id, entry.Transport)
		}
	}

	if entry.Command == "" {
		return nil, fmt.Errorf("server %s: neither command nor url is set", id)
	}
	return downstream.NewStdioClient(id, entry.Command, entry.Args, entry.Env, entry.Cwd), nil
}

// Connect builds and initializes a client with bounded retries and
// exponential backoff: delays of 500·2^i milliseconds between attempts
// (spec.md §4.2), and an optional per-attempt connect timeout.
func Connect(ctx context.Context, id string, entry config.ServerEntry) (downstream.Client, error) {
	client, err := Build(id, entry)
	if err != nil {
		return nil, err
	}

	maxRetries := DefaultMaxRetries
	var connectTimeout time.Duration
	if entry.ConnectTimeoutMs > 0 {
		connectTimeout = time.Duration(entry.ConnectTimeoutMs) * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBackoff(attempt)
			logging.Debug("connector", "server %s: retrying connect in %s (attempt %d/%d)", id, delay, attempt+1, maxRetries)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if connectTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, connectTimeout)
		}

		err := client.Initialize(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return client, nil
		}
		lastErr = err
		logging.Warn("connector", "server %s: connect attempt %d/%d failed: %v", id, attempt+1, maxRetries, err)
	}

	return nil, fmt.Errorf("server %s: exhausted %d connect attempts: %w", id, maxRetries, lastErr)
}

// retryBackoff returns the delay before connect attempt, 500·2^(attempt-1)
// milliseconds (spec.md §4.2: "500·2^i between attempts"), so the first retry
// (attempt 1) waits 500ms and the second (attempt 2) waits 1000ms.
func retryBackoff(attempt int) time.Duration {
	return time.Duration(500*pow2(attempt-1)) * time.Millisecond
}

func pow2(n int) int {
	result := 1
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}
