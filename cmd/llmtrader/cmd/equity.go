package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var equityDays int

var equityCmd = &cobra.Command{
	Use:   "equity",
	Short: "Show the equity curve and performance metrics",
	Long: `Print equity history from the ledger plus aggregate performance
metrics (total return, max drawdown, fill rate) for the window.

Example:
  llmtrader equity --days 7`,
	RunE: runEquity,
}

func init() {
	rootCmd.AddCommand(equityCmd)
	equityCmd.Flags().IntVarP(&equityDays, "days", "d", 30, "trailing window in days")
}

func runEquity(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	points, err := store.EquityCurve(equityDays)
	if err != nil {
		return fmt.Errorf("query equity curve: %w", err)
	}
	if len(points) == 0 {
		fmt.Printf("No equity history in the last %d days.\n", equityDays)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEQUITY\tCASH\tPOSITIONS\tUNREALIZED P/L\tDRAWDOWN\tOPEN")
	for _, p := range points {
		fmt.Fprintf(w, "%s\t$%.2f\t$%.2f\t$%.2f\t$%.2f\t%.2f%%\t%d\n",
			p.Timestamp.Local().Format("2006-01-02 15:04"),
			p.TotalEquity, p.Cash, p.PositionsValue, p.UnrealizedPL,
			p.DrawdownPct, p.NumPositions)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	m, err := store.PerformanceMetrics(equityDays)
	if err != nil {
		return fmt.Errorf("query metrics: %w", err)
	}
	if m != nil {
		fmt.Printf("\nLast %d days: return %.2f%%, max drawdown %.2f%%, orders %d (%.0f%% filled)\n",
			m.Days, m.TotalReturnPct, m.MaxDrawdownPct, m.TotalOrders, m.FillRatePct)
	}
	return nil
}
