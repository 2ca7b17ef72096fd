// Package transport defines the uniform send/receive contract the Downstream
// Client is built on (spec.md §4.1), plus the small amount of framing-adjacent
// logic (subprocess environment sanitization, header merging) that sits in
// front of the concrete mark3labs/mcp-go transports.
//
// mark3labs/mcp-go/client/transport already implements the byte-level JSON-RPC
// framing for stdio, SSE, and streamable-HTTP channels (newline-delimited
// JSON, Content-Length fallback, SSE event parsing). This package supplies the
// policy layer spec.md §4.1 asks for around it: the uniform Transport
// interface for testability, and the environment/header handling that the
// concrete mcp-go clients accept as constructor options.
package transport

import "errors"

// ErrClosed is returned by Send when called on a transport that has not been
// started, or has already been closed (spec.md §4.1: "send on an un-started
// or closed transport fails with TransportClosed").
var ErrClosed = errors.New("transport: closed")

// Transport is the minimal contract every concrete downstream channel
// implements. Callers other than the Downstream Client should not need it
// directly; it exists so the hub can test supervision logic against fakes
// without a real subprocess or socket.
type Transport interface {
	// Start begins the transport's read loop (and, for stdio, spawns the
	// child process). It must be safe to call Close before Start returns.
	Start() error

	// Send writes a single JSON-RPC message. Returns ErrClosed if the
	// transport has not been started or has already been closed.
	Send(message []byte) error

	// Close shuts down the transport. Safe to call more than once.
	Close() error

	// OnMessage registers the callback invoked for every inbound message.
	// Malformed lines are logged and skipped by the concrete implementation;
	// the read loop never terminates on a parse error (spec.md §4.1).
	OnMessage(func(message []byte))
}

// Kind identifies which concrete transport a ServerSpec resolves to.
type Kind string

const (
	KindStdio           Kind = "stdio"
	KindSSE             Kind = "sse"
	KindHTTP            Kind = "http"
	KindStreamableHTTP  Kind = "streamable-http"
)
