package gateway

import "github.com/himorishige/hatago-mcp-hub/internal/dispatcher"

// internalErrorResponse builds the internal-error envelope spec.md §6
// requires when the gateway itself (not the dispatcher) fails, e.g. a
// malformed request body: {error:{code:-32603,...}, id:null}.
func internalErrorResponse(message string) *dispatcher.Response {
	return &dispatcher.Response{
		JSONRPC: "2.0",
		ID:      nil,
		Error:   &dispatcher.RPCError{Code: dispatcher.CodeInternalError, Message: message},
	}
}
