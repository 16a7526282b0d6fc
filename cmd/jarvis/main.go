// Command jarvis is the JARVIS process entrypoint: config load,
// component wiring, and signal-driven lifecycle. Grounded on the
// teacher's cmd/nexus/main.go cobra root command plus
// cmd/nexus/handlers_serve.go's runServe teardown.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// version/commit/date are populated by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "jarvis",
		Short:        "JARVIS voice-enabled homelab command center",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd())
	root.AddCommand(buildMigrateCmd())
	root.AddCommand(buildDoctorCmd())
	return root
}
