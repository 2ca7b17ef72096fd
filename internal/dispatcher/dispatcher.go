package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/himorishige/hatago-mcp-hub/pkg/logging"
)

// ToolCallError is returned by Hub.CallTool for the error conditions
// spec.md §4.5 names explicitly, so the dispatcher can map them to the
// right JSON-RPC code instead of falling back to a generic internal error.
type ToolCallError struct {
	Code    int
	Message string
}

func (e *ToolCallError) Error() string { return e.Message }

// Capabilities is the hub's own {tools, resources, prompts} capability
// advertisement (spec.md §4.4: "returns the hub's server info and
// capabilities"). It is a hand-rolled wire shape rather than mcp-go's
// server-side capability type, since the Upstream Gateway is a custom
// dispatcher rather than an mcp-go server instance.
type Capabilities struct {
	Tools     *ListChangedCapability `json:"tools,omitempty"`
	Resources *ListChangedCapability `json:"resources,omitempty"`
	Prompts   *ListChangedCapability `json:"prompts,omitempty"`
}

// ListChangedCapability advertises support for the corresponding
// notifications/*/list_changed notification.
type ListChangedCapability struct {
	ListChanged bool `json:"listChanged"`
}

// Hub is everything the dispatcher needs from the Hub Coordinator. It is a
// pure function of (hub, params, id, sessionId?): the only I/O it performs
// is through this interface and the registries/clients behind it
// (spec.md §4.4).
type Hub interface {
	ServerInfo() mcp.Implementation
	Capabilities() Capabilities
	TouchSession(sessionID string, clientCapabilities json.RawMessage)

	ListTools() (tools []mcp.Tool, toolsetHash string, revision int64)
	CallTool(ctx context.Context, name string, arguments map[string]interface{}, upstreamProgressToken interface{}) (*mcp.CallToolResult, error)

	ListResources() []mcp.Resource
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	ListResourceTemplates(ctx context.Context) []mcp.ResourceTemplate

	ListPrompts() []mcp.Prompt
	GetPrompt(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.GetPromptResult, error)
}

// Dispatcher routes upstream JSON-RPC requests to the Hub.
type Dispatcher struct {
	hub Hub
}

// New builds a Dispatcher bound to hub.
func New(hub Hub) *Dispatcher {
	return &Dispatcher{hub: hub}
}

// Dispatch handles one upstream request and returns its response, or nil for
// a notification (no id, no response expected).
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, req Request) (resp *Response) {
	if req.IsNotification() {
		d.handleNotification(req)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error("dispatcher", fmt.Errorf("panic: %v", r), "recovered from panic handling %s", req.Method)
			resp = errorResponse(req.ID, CodeInternalError, "Internal error", fmt.Sprint(r))
		}
	}()

	switch req.Method {
	case "initialize":
		return d.handleInitialize(sessionID, req)
	case "tools/list":
		return d.handleToolsList(req)
	case "tools/call":
		return d.handleToolsCall(ctx, req)
	case "resources/list":
		return d.handleResourcesList(req)
	case "resources/read":
		return d.handleResourcesRead(ctx, req)
	case "resources/templates/list":
		return d.handleResourceTemplatesList(ctx, req)
	case "prompts/list":
		return d.handlePromptsList(req)
	case "prompts/get":
		return d.handlePromptsGet(ctx, req)
	case "ping":
		return resultResponse(req.ID, struct{}{})
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method, nil)
	}
}

func (d *Dispatcher) handleNotification(req Request) {
	switch req.Method {
	case "notifications/initialized":
		// No response; nothing else to do — the upstream client has
		// acknowledged the handshake.
	default:
		logging.Debug("dispatcher", "ignoring unhandled notification %s", req.Method)
	}
}

func (d *Dispatcher) handleInitialize(sessionID string, req Request) *Response {
	var params struct {
		ProtocolVersion string          `json:"protocolVersion"`
		Capabilities    json.RawMessage `json:"capabilities"`
	}
	_ = json.Unmarshal(req.Params, &params)

	d.hub.TouchSession(sessionID, params.Capabilities)

	result := struct {
		ProtocolVersion string             `json:"protocolVersion"`
		ServerInfo      mcp.Implementation `json:"serverInfo"`
		Capabilities    Capabilities       `json:"capabilities"`
	}{
		ProtocolVersion: "2024-11-05",
		ServerInfo:      d.hub.ServerInfo(),
		Capabilities:    d.hub.Capabilities(),
	}
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) handleToolsList(req Request) *Response {
	tools, hash, revision := d.hub.ListTools()
	result := struct {
		Tools []mcp.Tool `json:"tools"`
		Meta  struct {
			ToolsetHash string `json:"toolset_hash"`
			Revision    int64  `json:"revision"`
		} `json:"_meta"`
	}{Tools: tools}
	result.Meta.ToolsetHash = hash
	result.Meta.Revision = revision
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req Request) *Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
		Meta      *mcp.Meta      `json:"_meta"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInternalError, "invalid tools/call params", err.Error())
	}

	var progressToken interface{}
	if params.Meta != nil {
		progressToken = params.Meta.ProgressToken
	}

	result, err := d.hub.CallTool(ctx, params.Name, params.Arguments, progressToken)
	if err != nil {
		var toolErr *ToolCallError
		if e, ok := err.(*ToolCallError); ok {
			toolErr = e
		}
		if toolErr != nil {
			return errorResponse(req.ID, toolErr.Code, toolErr.Message, nil)
		}
		return errorResponse(req.ID, CodeInternalError, "Internal error", err.Error())
	}
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) handleResourcesList(req Request) *Response {
	resources := d.hub.ListResources()
	result := struct {
		Resources []mcp.Resource `json:"resources"`
	}{Resources: resources}
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) handleResourcesRead(ctx context.Context, req Request) *Response {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInternalError, "invalid resources/read params", err.Error())
	}

	result, err := d.hub.ReadResource(ctx, params.URI)
	if err != nil {
		var toolErr *ToolCallError
		if e, ok := err.(*ToolCallError); ok {
			toolErr = e
		}
		if toolErr != nil {
			return errorResponse(req.ID, toolErr.Code, toolErr.Message, nil)
		}
		return errorResponse(req.ID, CodeInternalError, "Internal error", err.Error())
	}
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) handleResourceTemplatesList(ctx context.Context, req Request) *Response {
	templates := d.hub.ListResourceTemplates(ctx)
	result := struct {
		ResourceTemplates []mcp.ResourceTemplate `json:"resourceTemplates"`
	}{ResourceTemplates: templates}
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) handlePromptsList(req Request) *Response {
	prompts := d.hub.ListPrompts()
	result := struct {
		Prompts []mcp.Prompt `json:"prompts"`
	}{Prompts: prompts}
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) handlePromptsGet(ctx context.Context, req Request) *Response {
	var params struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInternalError, "invalid prompts/get params", err.Error())
	}

	args := make(map[string]interface{}, len(params.Arguments))
	for k, v := range params.Arguments {
		args[k] = v
	}

	result, err := d.hub.GetPrompt(ctx, params.Name, args)
	if err != nil {
		var toolErr *ToolCallError
		if e, ok := err.(*ToolCallError); ok {
			toolErr = e
		}
		if toolErr != nil {
			return errorResponse(req.ID, toolErr.Code, toolErr.Message, nil)
		}
		return errorResponse(req.ID, CodeInternalError, "Internal error", err.Error())
	}
	return resultResponse(req.ID, result)
}
