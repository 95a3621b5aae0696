package cmd

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/facade"
)

func newJobsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and control background jobs",
	}
	cmd.AddCommand(newJobsStatusCmd(flags))
	cmd.AddCommand(newJobsCancelCmd(flags))
	cmd.AddCommand(newJobsRunCmd(flags))
	return cmd
}

func jobFlags(cmd *cobra.Command, jobID, root *string) {
	cmd.Flags().StringVar(jobID, "job-id", "", "Job identifier")
	cmd.Flags().StringVar(root, "codebase-root", ".", "Codebase root the job belongs to")
	_ = cmd.MarkFlagRequired("job-id")
}

func newJobsStatusCmd(flags *globalFlags) *cobra.Command {
	var jobID, root string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted status of a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := facade.ReadJobStatus(root, jobID)
			if err != nil {
				return err
			}
			flags.renderer().Event("job.status", status)
			return nil
		},
	}
	jobFlags(cmd, &jobID, &root)
	return cmd
}

func newJobsCancelCmd(flags *globalFlags) *cobra.Command {
	var jobID, root string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Request cancellation of a running job",
		Long: `Cancel writes the cancel sentinel for the job. The worker observes
it at its next poll and transitions the job to cancelled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := facade.CancelJob(root, jobID); err != nil {
				return err
			}
			flags.renderer().Event("job.cancel_requested", map[string]any{"jobId": jobID})
			return nil
		},
	}
	jobFlags(cmd, &jobID, &root)
	return cmd
}

func newJobsRunCmd(flags *globalFlags) *cobra.Command {
	var jobID, root string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a queued job to completion (worker entry point)",
		Long: `Run executes a queued job in this process. It is the entry point
the detached worker uses; running it by hand is useful for debugging.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := facade.RunJob(cmd.Context(), root, jobID, flags.telemetry())
			if err != nil {
				return err
			}
			flags.renderer().Event("job.finished", status)
			return nil
		},
	}
	jobFlags(cmd, &jobID, &root)
	return cmd
}

// spawnDetachedJob starts "semcode jobs run" as a detached worker
// process for the given job.
func spawnDetachedJob(codebaseRoot, jobID string) error {
	executable, err := os.Executable()
	if err != nil {
		return errors.IO(err).WithMeta("operation", "resolve_executable")
	}
	worker := exec.Command(executable, "jobs", "run",
		"--job-id", jobID,
		"--codebase-root", codebaseRoot)
	worker.Stdout = nil
	worker.Stderr = nil
	worker.Stdin = nil
	if err := worker.Start(); err != nil {
		return errors.IO(err).WithMeta("operation", "spawn_worker")
	}
	// The worker owns the job from here; releasing avoids a zombie if
	// this process exits first.
	return worker.Process.Release()
}
