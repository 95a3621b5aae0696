package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Luiz-Frias/semcode/internal/facade"
)

func newInitCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize a codebase for indexing",
		Long: `Initialize writes the .context/ state directory: the manifest
binding this codebase to its vector collection, a default config.toml
seed, and a .gitignore entry for the state directory.

Running init twice is safe; only timestamps change.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}

			app, err := facade.Init(root, flags.telemetry())
			if err != nil {
				return err
			}

			flags.renderer().Event("init", map[string]any{
				"codebaseRoot":   app.Root,
				"collectionName": app.Manifest.CollectionName,
				"indexMode":      app.Manifest.IndexMode,
			})
			return nil
		},
	}
	return cmd
}
