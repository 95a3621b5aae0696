package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Luiz-Frias/semcode/internal/facade"
	"github.com/Luiz-Frias/semcode/internal/fsys"
	"github.com/Luiz-Frias/semcode/internal/reqctx"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Summarize the indexing state of a codebase",
		Long: `Status reports whether the codebase is initialized, which
collection it is bound to, whether that collection exists, and whether
a sync snapshot is present.`,
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

			summary := map[string]any{
				"codebaseRoot": app.Root,
				"initialized":  app.Initialized(),
			}
			if app.Initialized() {
				summary["collectionName"] = app.Manifest.CollectionName
				summary["indexMode"] = app.Manifest.IndexMode
				summary["snapshotStorage"] = app.Manifest.SnapshotStorage

				summary["collectionExists"] = app.CollectionExists(reqctx.New(cmd.Context()))

				syncDir := filepath.Join(app.Root, fsys.StateDirName, "sync")
				entries, err := os.ReadDir(syncDir)
				summary["snapshotPresent"] = err == nil && hasJSON(entries)
			}

			flags.renderer().Event("status", summary)
			return nil
		},
	}
	return cmd
}

func hasJSON(entries []os.DirEntry) bool {
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			return true
		}
	}
	return false
}
