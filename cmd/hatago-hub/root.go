package main

import "github.com/spf13/cobra"

// Exit codes (spec.md §6: "0 clean shutdown, nonzero for fatal startup errors").
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootCmd is the entry point when hatago-hub is invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:           "hatago-hub",
	Short:         "Aggregate many MCP servers behind one upstream MCP endpoint",
	Long:          `hatago-hub multiplexes one upstream MCP client across many downstream MCP servers, reached over stdio, SSE, and streamable-HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion injects the build-time version into the version command.
func SetVersion(v string) {
	rootCmd.Version = v
}

func init() {
	rootCmd.SetVersionTemplate(`{{printf "hatago-hub version %s\n" .Version}}`)
}
