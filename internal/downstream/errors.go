package downstream

import "strings"

// IsMethodNotFound reports whether err represents a JSON-RPC -32601 response
// from a downstream server. mcp-go surfaces RPC error responses as plain Go
// errors whose text carries the code, so this matches on that text rather
// than a concrete error type — it stays correct across client versions that
// format the wrapping differently.
func IsMethodNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "-32601") || strings.Contains(msg, "method not found")
}
