// Package downstream implements the MCP protocol client bound to one
// Transport (spec.md §4.1 "Downstream Client"): request/response correlation
// and notification dispatch, on top of mark3labs/mcp-go's client transports.
package downstream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	hubtransport "github.com/himorishige/hatago-mcp-hub/internal/transport"
	"github.com/himorishige/hatago-mcp-hub/pkg/logging"
)

// protocolVersion is the MCP protocol version string the hub targets when
// shaking hands with downstream servers (spec.md §4.4: "fixed by the MCP
// version the hub targets").
const protocolVersion = "2024-11-05"

const defaultInitTimeout = 10 * time.Second

// Client is the uniform interface the Server Supervisor and tools/call
// pipeline drive every downstream connection through, regardless of its
// concrete transport.
type Client interface {
	Initialize(ctx context.Context) error
	Close() error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}, progressToken interface{}) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error)
	ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error)
	Ping(ctx context.Context) error

	// OnNotification registers the callback the Notification Relay uses to
	// learn about downstream-originated notifications (progress, list
	// changed). Each call registers another handler on the underlying client;
	// the Server Supervisor installs one per client, at connect time.
	OnNotification(handler func(mcp.JSONRPCNotification))
}

// base implements the protocol operations shared by every transport, mirroring
// mark3labs/mcp-go's own baseMCPClient split: transport-specific code only
// handles connection setup, everything past Initialize is identical.
type base struct {
	mu        sync.RWMutex
	client    client.MCPClient
	connected bool
	name      string // subsystem tag used in log lines, e.g. the server id
}

func (b *base) checkConnected() error {
	if !b.connected || b.client == nil {
		return fmt.Errorf("downstream client %s: not connected", b.name)
	}
	return nil
}

func (b *base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected || b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.connected = false
	b.client = nil
	return err
}

func (b *base) OnNotification(handler func(mcp.JSONRPCNotification)) {
	b.mu.RLock()
	c := b.client
	b.mu.RUnlock()
	if c == nil || handler == nil {
		return
	}
	c.OnNotification(handler)
}

func (b *base) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return result.Tools, nil
}

func (b *base) CallTool(ctx context.Context, name string, args map[string]interface{}, progressToken interface{}) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	if progressToken != nil {
		req.Params.Meta = &mcp.Meta{ProgressToken: progressToken}
	}

	result, err := b.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}
	return result, nil
}

func (b *base) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return result.Resources, nil
}

func (b *base) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.client.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list resource templates: %w", err)
	}
	return result.ResourceTemplates, nil
}

func (b *base) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	result, err := b.client.ReadResource(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", uri, err)
	}
	return result, nil
}

func (b *base) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return result.Prompts, nil
}

func (b *base) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	stringArgs := make(map[string]string, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			stringArgs[k] = s
		} else {
			stringArgs[k] = fmt.Sprintf("%v", v)
		}
	}

	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = stringArgs

	result, err := b.client.GetPrompt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", name, err)
	}
	return result, nil
}

func (b *base) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return err
	}
	return b.client.Ping(ctx)
}

func initRequest(clientName string) mcp.InitializeRequest {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = protocolVersion
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: "1.0.0"}
	req.Params.Capabilities = mcp.ClientCapabilities{}
	return req
}

// logConnectHeaders debug-logs the header names a remote connection carries,
// with any Authorization value redacted before it ever reaches a log line
// (spec.md §4.1: header redaction is mandatory for remote transports).
func logConnectHeaders(subsystem, serverName string, headers map[string]string) {
	if len(headers) == 0 {
		return
	}
	for k, v := range headers {
		if strings.EqualFold(k, "Authorization") {
			logging.Debug(subsystem, "server %s: header %s=%s", serverName, k, logging.RedactAuthHeader(v))
			continue
		}
		logging.Debug(subsystem, "server %s: header %s set", serverName, k)
	}
}

func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// StdioClient manages an MCP server run as a local subprocess.
type StdioClient struct {
	base
	command string
	args    []string
	env     map[string]string
	cwd     string
	stderr  io.Reader
}

// NewStdioClient creates a stdio-transport client. The process is not
// spawned until Initialize is called.
func NewStdioClient(name, command string, args []string, env map[string]string, cwd string) *StdioClient {
	return &StdioClient{base: base{name: name}, command: command, args: args, env: env, cwd: cwd}
}

// Initialize spawns the subprocess (with a sanitized environment, per
// spec.md §4.1) and performs the MCP handshake.
func (c *StdioClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	envStrings := hubtransport.SanitizeEnv(c.env)

	logging.Debug("downstream.stdio", "spawning %s %v for server %s", c.command, c.args, c.name)
	mcpClient, err := client.NewStdioMCPClient(c.command, envStrings, c.args...)
	if err != nil {
		return fmt.Errorf("create stdio client for %s: %w", c.name, err)
	}

	initCtx, cancel := withDefaultTimeout(ctx, defaultInitTimeout)
	defer cancel()

	if _, err := mcpClient.Initialize(initCtx, initRequest("hatago-hub")); err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("initialize MCP protocol for %s: %w", c.name, err)
	}

	if stderrReader, ok := client.GetStderr(mcpClient.(*client.Client)); ok {
		c.stderr = stderrReader
		go c.drainStderr()
	}

	c.client = mcpClient
	c.connected = true
	return nil
}

// drainStderr reads and logs the child's stderr without ever treating it as
// protocol traffic (spec.md §4.1: "never parsed as protocol").
func (c *StdioClient) drainStderr() {
	if c.stderr == nil {
		return
	}
	scanner := bufio.NewScanner(c.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		logging.Debug("downstream.stderr", "[%s] %s", c.name, scanner.Text())
	}
}

// SSEClient manages an MCP server reached over Server-Sent Events.
type SSEClient struct {
	base
	url     string
	headers map[string]string
}

func NewSSEClient(name, url string, headers map[string]string) *SSEClient {
	return &SSEClient{base: base{name: name}, url: url, headers: headers}
}

func (c *SSEClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	logConnectHeaders("downstream.sse", c.name, c.headers)

	var opts []transport.ClientOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHeaders(c.headers))
	}

	mcpClient, err := client.NewSSEMCPClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("create SSE client for %s: %w", c.name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("start SSE transport for %s: %w", c.name, err)
	}
	if _, err := mcpClient.Initialize(ctx, initRequest("hatago-hub")); err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("initialize MCP protocol for %s: %w", c.name, err)
	}

	c.client = mcpClient
	c.connected = true
	return nil
}

// StreamableHTTPClient manages an MCP server reached over streamable-HTTP.
type StreamableHTTPClient struct {
	base
	url       string
	headers   map[string]string
	keepAlive time.Duration

	stopKeepAlive chan struct{}
}

// NewStreamableHTTPClient creates a streamable-HTTP client. When keepAlive is
// positive, Initialize starts a background ping ticker at that interval for
// the life of the connection (spec.md §4.1: "optional keep-alive interval").
func NewStreamableHTTPClient(name, url string, headers map[string]string, keepAlive time.Duration) *StreamableHTTPClient {
	return &StreamableHTTPClient{base: base{name: name}, url: url, headers: headers, keepAlive: keepAlive}
}

func (c *StreamableHTTPClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	logConnectHeaders("downstream.streamable-http", c.name, c.headers)

	var opts []transport.StreamableHTTPCOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(c.headers))
	}

	mcpClient, err := client.NewStreamableHttpClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("create streamable-http client for %s: %w", c.name, err)
	}
	if _, err := mcpClient.Initialize(ctx, initRequest("hatago-hub")); err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("initialize MCP protocol for %s: %w", c.name, err)
	}

	c.client = mcpClient
	c.connected = true

	if c.keepAlive > 0 {
		c.stopKeepAlive = make(chan struct{})
		go c.runKeepAlive(c.stopKeepAlive)
	}
	return nil
}

// runKeepAlive pings the downstream server on c.keepAlive intervals until
// stop is closed, so idle streamable-HTTP connections survive intermediary
// timeouts (spec.md §4.1). A failed ping is logged, not fatal: the next
// application-level call surfaces the real connection state.
func (c *StreamableHTTPClient) runKeepAlive(stop chan struct{}) {
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.keepAlive)
			if err := c.Ping(ctx); err != nil {
				logging.Debug("downstream.streamable-http", "keep-alive ping for %s failed: %v", c.name, err)
			}
			cancel()
		}
	}
}

// Close stops the keep-alive ticker before closing the underlying transport.
func (c *StreamableHTTPClient) Close() error {
	c.mu.Lock()
	stop := c.stopKeepAlive
	c.stopKeepAlive = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	return c.base.Close()
}

var (
	_ Client = (*StdioClient)(nil)
	_ Client = (*SSEClient)(nil)
	_ Client = (*StreamableHTTPClient)(nil)
)
