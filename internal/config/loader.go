package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a Config from a YAML file at path.
//
// A missing config file is a fatal startup error for the stdio front-end
// (spec.md §6 exit codes); callers that treat config as optional should
// check os.IsNotExist(err) themselves.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if errs := Validate(cfg); errs.HasErrors() {
		return Config{}, errs
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.NamingStrategy == "" {
		cfg.NamingStrategy = NamingPrefix
	}
	if cfg.Separator == "" {
		cfg.Separator = "_"
	}
}

// Validate checks every server entry for the invariants spec.md §3/§6 require:
// a non-empty id (the map key), and either subprocess fields (command) or
// remote fields (url+transport), never a mix that leaves both unset.
func Validate(cfg Config) ValidationErrors {
	var errs ValidationErrors

	for id, entry := range cfg.MCPServers {
		if id == "" {
			errs = append(errs, ValidationError{Server: id, Field: "id", Reason: "server id must not be empty"})
			continue
		}

		isSubprocess := entry.Command != ""
		isRemote := entry.IsRemote()

		switch {
		case isSubprocess && isRemote:
			errs = append(errs, ValidationError{Server: id, Field: "command/url", Reason: "entry cannot specify both a command and a url"})
		case !isSubprocess && !isRemote:
			errs = append(errs, ValidationError{Server: id, Field: "command/url", Reason: "entry must specify either command (subprocess) or url (remote)"})
		case isRemote:
			switch entry.Transport {
			case TransportSSE, TransportHTTP, TransportStreamableHTTP:
			case "":
				errs = append(errs, ValidationError{Server: id, Field: "transport", Reason: "remote entries must set transport to sse, http, or streamable-http"})
			default:
				errs = append(errs, ValidationError{Server: id, Field: "transport", Reason: fmt.Sprintf("unknown transport kind %q", entry.Transport)})
			}
		}

		if entry.EffectiveStartMode() != StartEager && entry.EffectiveStartMode() != StartLazy {
			errs = append(errs, ValidationError{Server: id, Field: "startMode", Reason: fmt.Sprintf("unknown start mode %q", entry.EffectiveStartMode())})
		}
	}

	return errs
}

// MatchesTags reports whether entry should be included given a non-empty
// filter set (spec.md §6: "a server is included only if its tags intersect").
// An empty filter set matches every server.
func MatchesTags(entry ServerEntry, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, want := range filter {
		for _, have := range entry.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}
