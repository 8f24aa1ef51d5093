package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var onceFocus []string

var onceCmd = &cobra.Command{
	Use:   "once [symbols...]",
	Short: "Run a single trading cycle",
	Long: `Run one trading cycle and exit. Positional arguments narrow the
universe the decision generator analyzes.

Example:
  llmtrader once AAPL NVDA --config config.yaml`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	focus := args
	if len(focus) == 0 {
		focus = app.cfg.Runner.FocusSymbols
	}
	return app.runner.RunOnce(ctx, focus)
}
