package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/jobs"
)

var (
	runNiche  string
	runRegion string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect leads for a niche in a region",
	Long:  "Runs a new job in the foreground. Ctrl-C stops it at the next item; the job can be continued later with `resume`.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv("run")
		if err != nil {
			return err
		}
		defer env.Close()

		id, err := env.Manager.Start(runNiche, runRegion)
		if err != nil {
			return err
		}
		return waitForeground(ctx, env.Manager, id)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Continue an interrupted job from its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv("resume")
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Manager.RegisterResumable(); err != nil {
			return err
		}
		if err := env.Manager.Resume(args[0]); err != nil {
			return err
		}
		return waitForeground(ctx, env.Manager, args[0])
	},
}

// waitForeground waits for a job, stopping it when ctx is cancelled, and
// prints its final state.
func waitForeground(ctx context.Context, m *jobs.Manager, id string) error {
	err := m.Wait(ctx, id)
	if ctx.Err() != nil {
		zap.L().Info("stopping job", zap.String("job_id", id))
		if stopErr := m.Stop(id); stopErr != nil {
			return stopErr
		}
		err = m.Wait(context.Background(), id)
	}

	v, stateErr := m.State(context.Background(), id)
	if stateErr == nil {
		printJob(v)
		if v.CanResume {
			fmt.Printf("\nresume with: lead-scraper resume %s\n", v.ID)
		}
	}
	return err
}

func init() {
	runCmd.Flags().StringVar(&runNiche, "niche", "", "business category to search for (required)")
	runCmd.Flags().StringVar(&runRegion, "region", jobs.DefaultRegion, "region key or state name")
	_ = runCmd.MarkFlagRequired("niche")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
}
