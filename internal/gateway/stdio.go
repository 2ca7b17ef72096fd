package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/himorishige/hatago-mcp-hub/internal/dispatcher"
	"github.com/himorishige/hatago-mcp-hub/pkg/logging"
)

// stdioSessionID is the fixed session identity for the stdio surface: a
// stdio transport is always a single client over a single process lifetime,
// so there is exactly one implicit session (spec.md §4.8).
const stdioSessionID = "stdio"

// stdioSink implements relay.Sink by writing one newline-delimited JSON
// message per notification to the stdio surface's writer, serialized
// against concurrent response writes from ServeStdio.
type stdioSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *stdioSink) SendNotification(message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(message); err != nil {
		return err
	}
	_, err := s.w.Write([]byte("\n"))
	return err
}

// ServeStdio reads newline-delimited JSON-RPC requests from r, dispatches
// each, and writes newline-delimited JSON-RPC responses to w, while also
// registering w as a Notification Relay sink — the single stdio surface
// carries both directions of traffic (spec.md §4.8, §6: "nothing else is
// written to stdout").
func (g *Gateway) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	sink := &stdioSink{w: w}
	g.relay.AddSink(sink)
	defer g.relay.RemoveSink(sink)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(trimSpace(line)) == 0 {
			continue
		}

		var req dispatcher.Request
		if err := json.Unmarshal(line, &req); err != nil {
			sink.mu.Lock()
			_ = json.NewEncoder(w).Encode(internalErrorResponse("invalid JSON-RPC message"))
			sink.mu.Unlock()
			continue
		}

		resp := g.dispatcher.Dispatch(ctx, stdioSessionID, req)
		if resp == nil {
			continue
		}

		sink.mu.Lock()
		err := json.NewEncoder(w).Encode(resp)
		sink.mu.Unlock()
		if err != nil {
			logging.Warn("gateway.stdio", "failed to write response: %v", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
