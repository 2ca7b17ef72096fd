// Package config parses the hub's configuration object (spec.md §6). It
// intentionally does not watch the filesystem for changes — config file
// parsing and watching are an external collaborator per spec.md §1.
package config

import "fmt"

// TransportKind identifies a downstream remote transport.
type TransportKind string

const (
	TransportSSE            TransportKind = "sse"
	TransportHTTP           TransportKind = "http"
	TransportStreamableHTTP TransportKind = "streamable-http"
)

// StartMode controls whether a server connects at hub startup or on first use.
type StartMode string

const (
	StartEager StartMode = "eager"
	StartLazy  StartMode = "lazy"
)

// NamingStrategy controls how public names are derived from (serverID, originalName).
type NamingStrategy string

const (
	NamingNone      NamingStrategy = "none"
	NamingPrefix    NamingStrategy = "prefix"
	NamingNamespace NamingStrategy = "namespace"
)

// ServerEntry is the on-disk description of one downstream server
// (spec.md §3 ServerSpec, plus the serverEntry wrapper fields from §6).
type ServerEntry struct {
	// Subprocess fields.
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Cwd     string            `yaml:"cwd,omitempty"`

	// Remote fields.
	URL       string            `yaml:"url,omitempty"`
	Transport TransportKind     `yaml:"transport,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`

	// Shared optional fields.
	ConnectTimeoutMs   int64    `yaml:"connectTimeoutMs,omitempty"`
	RequestTimeoutMs   int64    `yaml:"requestTimeoutMs,omitempty"`
	KeepAliveTimeoutMs int64    `yaml:"keepAliveTimeoutMs,omitempty"`
	Tags               []string `yaml:"tags,omitempty"`
	StartMode          string   `yaml:"startMode,omitempty"`
	Disabled           bool     `yaml:"disabled,omitempty"`

	HatagoOptions *HatagoOptions `yaml:"hatagoOptions,omitempty"`
}

// HatagoOptions carries the hatagoOptions.start override from spec.md §6.
type HatagoOptions struct {
	Start string `yaml:"start,omitempty"`
}

// IsRemote reports whether this entry describes a remote (HTTP/SSE) server.
func (e ServerEntry) IsRemote() bool {
	return e.URL != ""
}

// EffectiveStartMode resolves the start mode, honoring hatagoOptions.start
// as an override of the top-level startMode field.
func (e ServerEntry) EffectiveStartMode() StartMode {
	if e.HatagoOptions != nil && e.HatagoOptions.Start != "" {
		return StartMode(e.HatagoOptions.Start)
	}
	if e.StartMode != "" {
		return StartMode(e.StartMode)
	}
	return StartEager
}

// Timeouts is the global timeouts block from spec.md §6.
type Timeouts struct {
	ConnectMs   int64 `yaml:"connectMs,omitempty"`
	RequestMs   int64 `yaml:"requestMs,omitempty"`
	KeepAliveMs int64 `yaml:"keepAliveMs,omitempty"`
}

// NotificationsConfig is parsed but opaque to the core: nothing in the hub
// reads it, and it is not passed to the Notification Relay.
type NotificationsConfig map[string]interface{}

// Config is the full object described in spec.md §6.
type Config struct {
	MCPServers     map[string]ServerEntry `yaml:"mcpServers"`
	Timeouts       *Timeouts              `yaml:"timeouts,omitempty"`
	Notifications  NotificationsConfig    `yaml:"notifications,omitempty"`
	NamingStrategy NamingStrategy         `yaml:"namingStrategy,omitempty"`
	Separator      string                 `yaml:"separator,omitempty"`
	Tags           []string               `yaml:"tags,omitempty"`
}

// ValidationError describes one invalid field in a config entry.
type ValidationError struct {
	Server string
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("mcpServers.%s.%s: %s", e.Server, e.Field, e.Reason)
}

// ValidationErrors collects every validation failure found while loading
// the config so a caller can report them all at once instead of failing
// fast on the first one.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msg := fmt.Sprintf("%d invalid server definition(s):", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

func (e ValidationErrors) HasErrors() bool { return len(e) > 0 }
