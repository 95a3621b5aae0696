package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Luiz-Frias/semcode/internal/facade"
	"github.com/Luiz-Frias/semcode/internal/reqctx"
)

func newClearCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear [path]",
		Short: "Drop the collection and delete the sync snapshot",
		Long: `Clear removes the vector collection bound to this codebase and
deletes its Merkle snapshot. Both steps are idempotent; clearing an
absent index succeeds.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			app, err := facade.Open(root, flags.telemetry())
			if err != nil {
				return err
			}
			if err := app.RunClearLocal(reqctx.New(cmd.Context())); err != nil {
				return err
			}
			flags.renderer().Event("clear", map[string]any{"codebaseRoot": app.Root})
			return nil
		},
	}
	return cmd
}
