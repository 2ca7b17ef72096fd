package supervisor

import (
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/himorishige/hatago-mcp-hub/internal/config"
	"github.com/himorishige/hatago-mcp-hub/internal/downstream"
)

// maxConsecutiveResourceFailures trips the resources/list circuit breaker
// (spec.md §4.2: "after maxConsecutiveFailures (3) failures on
// resources/list per server").
const maxConsecutiveResourceFailures = 3

// Record is the runtime state the supervisor keeps for one configured
// downstream server (spec.md §3 "Server").
type Record struct {
	ID   string
	Spec config.ServerEntry

	Status    State
	LastError error

	Client downstream.Client

	Tools     []mcp.Tool
	Resources []mcp.Resource
	Prompts   []mcp.Prompt

	ResourcesUnsupported bool
	PromptsUnsupported   bool

	consecutiveResourceFailures int
	resourcesCircuitOpen        bool

	HealthCheckFailures int
	AutoRestartAttempts int
	IsRestarting        bool
	LastRestartAt       *time.Time
}

// TypeLabel reports "remote" or "local" for the hatago://servers resource.
func (r *Record) TypeLabel() string {
	if r.Spec.IsRemote() {
		return "remote"
	}
	return "local"
}

func (r *Record) toolNames() []string {
	names := make([]string, len(r.Tools))
	for i, t := range r.Tools {
		names[i] = t.Name
	}
	return names
}

func (r *Record) resourceURIs() []string {
	uris := make([]string, len(r.Resources))
	for i, res := range r.Resources {
		uris[i] = res.URI
	}
	return uris
}

func (r *Record) promptNames() []string {
	names := make([]string, len(r.Prompts))
	for i, p := range r.Prompts {
		names[i] = p.Name
	}
	return names
}
