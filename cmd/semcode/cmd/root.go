// Package cmd provides the CLI commands for semcode.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Luiz-Frias/semcode/internal/logging"
	"github.com/Luiz-Frias/semcode/internal/output"
	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/telemetry"
	"github.com/Luiz-Frias/semcode/pkg/version"
)

// globalFlags carries the output-mode selection shared by every command.
type globalFlags struct {
	jsonOut   bool
	ndjsonOut bool
	agentOut  bool
	logLevel  string
}

func (g *globalFlags) renderer() *output.Renderer {
	return output.NewRenderer(output.ModeFromFlags(g.jsonOut, g.ndjsonOut, g.agentOut), os.Stdout)
}

func (g *globalFlags) telemetry() ports.Telemetry {
	return telemetry.NewStderr()
}

func newRootCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "semcode",
		Short: "Semantic code search over local codebases",
		Long: `semcode indexes a source repository into a vector collection and
serves natural-language code search against it.

Indexing is incremental: a Merkle snapshot of file hashes lets
subsequent runs re-index only what changed. Long-running operations can
run as cancellable background jobs with persisted progress.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logging.Config{Level: flags.logLevel})
		},
	}
	cmd.SetVersionTemplate("semcode version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "Emit JSON output")
	cmd.PersistentFlags().BoolVar(&flags.ndjsonOut, "ndjson", false, "Emit NDJSON output")
	cmd.PersistentFlags().BoolVar(&flags.agentOut, "agent", false, "Emit agent-oriented NDJSON with stable error codes")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	cmd.AddCommand(newInitCmd(flags))
	cmd.AddCommand(newIndexCmd(flags))
	cmd.AddCommand(newReindexCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))
	cmd.AddCommand(newClearCmd(flags))
	cmd.AddCommand(newSearchCmd(flags))
	cmd.AddCommand(newJobsCmd(flags))
	cmd.AddCommand(newVersionCmd(flags))

	return cmd
}

// NewRootCmd creates the root command (exported for tests).
func NewRootCmd() *cobra.Command {
	return newRootCmd(&globalFlags{})
}

// Execute runs the CLI and returns the process exit code: 0 on success,
// 2 for expected errors, 1 otherwise.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := &globalFlags{}
	root := newRootCmd(flags)
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		flags.renderer().Error(err)
		return output.ExitCode(err)
	}
	return 0
}
