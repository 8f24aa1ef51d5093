package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the continuous trading loop",
	Long: `Run the trading loop until interrupted: one cycle per interval,
exponential backoff after failures, daily retention cleanup.

SIGINT and SIGTERM trigger a graceful shutdown; with
runner.cancel_orders_on_stop set, open orders are cancelled on the way out.

Example:
  llmtrader run --config config.yaml`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	return app.runner.Run(ctx)
}
