// Package cmd implements the runtime binary's command tree: serve (start
// the HTTP/SSE gateway + broker), migrate (apply persistence schema), and
// doctor (config/connectivity sanity check) — a command-per-file layout
// grounded on the teacher's cmd/root.go, narrowed to this Runtime's three
// commands now that config is environment-only (no --config flag, no
// onboarding/pairing/channel-admin CLI surface — those belonged to the
// teacher's managed-agent persona gateway, not this spec).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/openclaw/runtime/cmd.Version=v1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "runtime",
	Short: "openclaw-runtime — multi-tenant agent-run orchestrator",
	Long:  "openclaw-runtime accepts user requests from chat channels and streams the resulting agent activity back to subscribers in real time.",
}

func init() {
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(doctorCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("runtime %s\n", Version)
		},
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
