package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Luiz-Frias/semcode/internal/output"
	"github.com/Luiz-Frias/semcode/pkg/version"
)

func newVersionCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			renderer := flags.renderer()
			if renderer.Mode() == output.ModeText {
				renderer.Event("version", version.String())
				return nil
			}
			renderer.Event("version", version.Info())
			return nil
		},
	}
}
