package transport

import "fmt"

// suppressedEnv lists environment variables forced off for spawned subprocess
// servers so they never write ANSI color, update-notifier, or progress-bar
// noise onto the stdout channel the hub is parsing as JSON-RPC
// (spec.md §4.1: "spawned with a sanitized environment that suppresses
// color, update notifiers, and progress output").
var suppressedEnv = map[string]string{
	"NO_COLOR":              "1",
	"FORCE_COLOR":           "0",
	"NO_UPDATE_NOTIFIER":    "1",
	"CI":                    "1",
	"NPM_CONFIG_PROGRESS":   "false",
	"NPM_CONFIG_LOGLEVEL":   "error",
	"PIP_PROGRESS_BAR":      "off",
	"PIP_DISABLE_PIP_VERSION_CHECK": "1",
}

// SanitizeEnv merges the caller-supplied environment on top of the
// suppression defaults and returns a "KEY=VALUE" slice suitable for passing
// to a subprocess constructor. Caller-supplied values always win over the
// suppression defaults, so an operator can still opt back into color output
// if a server genuinely requires it.
func SanitizeEnv(userEnv map[string]string) []string {
	merged := make(map[string]string, len(suppressedEnv)+len(userEnv))
	for k, v := range suppressedEnv {
		merged[k] = v
	}
	for k, v := range userEnv {
		merged[k] = v
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
