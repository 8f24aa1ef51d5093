package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [symbol]",
	Short: "Cancel open orders",
	Long: `Cancel all open orders at the broker, or only those for one symbol.

Example:
  llmtrader cancel AAPL`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	symbol := ""
	if len(args) == 1 {
		symbol = args[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := app.exec.CancelPendingOrders(ctx, symbol)
	if err != nil {
		return err
	}
	fmt.Printf("Cancelled %d order(s).\n", n)
	return nil
}
