package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Luiz-Frias/semcode/internal/facade"
	"github.com/Luiz-Frias/semcode/internal/jobs"
	"github.com/Luiz-Frias/semcode/internal/pipeline"
	"github.com/Luiz-Frias/semcode/internal/reqctx"
)

func newIndexCmd(flags *globalFlags) *cobra.Command {
	var (
		initFirst  bool
		background bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a codebase into its vector collection",
		Long: `Index scans the codebase, splits files into code-aware chunks,
embeds each chunk and stores the vectors with metadata.

With --background the work is persisted as a job and run in a detached
worker; use 'semcode jobs status' to follow it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			renderer := flags.renderer()

			if background {
				var app *facade.App
				var err error
				if initFirst {
					app, err = facade.Init(root, flags.telemetry())
				} else {
					app, err = facade.Open(root, flags.telemetry())
				}
				if err != nil {
					return err
				}
				request, err := app.CreateJob(jobs.KindIndex, initFirst)
				if err != nil {
					return err
				}
				if err := spawnDetachedJob(app.Root, request.ID); err != nil {
					return err
				}
				renderer.Event("job.created", map[string]any{
					"jobId":        request.ID,
					"kind":         string(request.Kind),
					"codebaseRoot": app.Root,
				})
				return nil
			}

			var app *facade.App
			var err error
			if initFirst {
				app, err = facade.Init(root, flags.telemetry())
			} else {
				app, err = facade.Open(root, flags.telemetry())
			}
			if err != nil {
				return err
			}

			req := reqctx.New(cmd.Context())
			progress := indexProgress(renderer)

			out, err := app.RunIndexLocal(req, facade.IndexOptions{Force: force, Progress: progress})
			if err != nil {
				return err
			}
			renderer.Event("index.done", map[string]any{
				"indexedFiles": out.IndexedFiles,
				"totalChunks":  out.TotalChunks,
				"indexStatus":  string(out.Status),
				"stageStats":   out.StageStats,
			})
			return nil
		},
	}

	cmd.Flags().BoolVar(&initFirst, "init", false, "Initialize the codebase first if needed")
	cmd.Flags().BoolVar(&background, "background", false, "Run as a detached background job")
	cmd.Flags().BoolVar(&force, "force", false, "Drop the collection and rebuild from scratch")
	return cmd
}

// indexProgress renders progress lines in text mode and progress events
// in the structured modes.
func indexProgress(renderer interface {
	Event(event string, payload any)
}) pipeline.ProgressFunc {
	return func(update pipeline.ProgressUpdate) {
		renderer.Event("index.progress", map[string]any{
			"phase":      update.Phase,
			"current":    update.Current,
			"total":      update.Total,
			"percentage": update.Percentage,
		})
	}
}

func newReindexCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex [path]",
		Short: "Re-index only files changed since the last snapshot",
		Long: `Reindex compares the current tree against the stored Merkle
snapshot, deletes chunks of removed and modified files, and indexes
added and modified files.`,
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

			renderer := flags.renderer()
			out, err := app.RunReindexLocal(reqctx.New(cmd.Context()), indexProgress(renderer))
			if err != nil {
				return err
			}
			renderer.Event("reindex.done", map[string]any{
				"added":    out.Added,
				"removed":  out.Removed,
				"modified": out.Modified,
			})
			if out.Added == 0 && out.Removed == 0 && out.Modified == 0 {
				renderer.Event("reindex.note", "no changes since last snapshot")
			}
			return nil
		},
	}
	return cmd
}
