package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent as a long-lived daemon (scheduler only; no interactive channel)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

// runDaemon starts the scheduler and blocks until interrupted. No
// interactive channel is attached: routines fire on their own cron
// schedules and route output to their configured channel.
func runDaemon(ctx context.Context) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	eng, err := buildScheduler(a)
	if err != nil {
		return err
	}

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng.Start(sigCtx)
	slog.Info("claw daemon started", "workspace", a.Workspace, "data_dir", a.DataDir, "routines", len(eng.ListRoutines()))

	<-sigCtx.Done()
	slog.Info("shutting down")
	eng.Stop()
	return nil
}
