package registry

import (
	"fmt"

	"github.com/himorishige/hatago-mcp-hub/internal/config"
)

// Strategy is one of the three public-name derivation strategies
// (spec.md §4.3).
type Strategy = config.NamingStrategy

const (
	StrategyNone      = config.NamingNone
	StrategyPrefix    = config.NamingPrefix
	StrategyNamespace = config.NamingNamespace
)

// Namer derives a public key from a server id and an original key, per the
// active naming strategy.
type Namer struct {
	strategy  Strategy
	separator string
}

// NewNamer builds a Namer. An unrecognized strategy falls back to prefix,
// the safest default (it can never collide across servers on its own).
func NewNamer(strategy Strategy, separator string) *Namer {
	if separator == "" {
		separator = "_"
	}
	switch strategy {
	case StrategyNone, StrategyPrefix, StrategyNamespace:
	default:
		strategy = StrategyPrefix
	}
	return &Namer{strategy: strategy, separator: separator}
}

// PublicKey derives the public key for one original item.
func (n *Namer) PublicKey(serverID, originalKey string) string {
	switch n.strategy {
	case StrategyNone:
		return originalKey
	default: // prefix, namespace
		return fmt.Sprintf("%s%s%s", serverID, n.separator, originalKey)
	}
}
