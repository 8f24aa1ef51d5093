package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var ordersLimit int

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Show recently submitted orders",
	Long: `List the most recent orders from the execution ledger, newest first.

Example:
  llmtrader orders --limit 50`,
	RunE: runOrders,
}

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.Flags().IntVarP(&ordersLimit, "limit", "n", 20, "maximum number of orders to show")
}

func runOrders(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	orders, err := store.RecentOrders(ordersLimit)
	if err != nil {
		return fmt.Errorf("query orders: %w", err)
	}
	if len(orders) == 0 {
		fmt.Println("No orders recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUBMITTED\tSYMBOL\tACTION\tQTY\tTYPE\tSTATUS\tFILLED\tPRICE\tOP ID")
	for _, o := range orders {
		price := "-"
		if o.FilledPrice != nil {
			price = fmt.Sprintf("%.2f", *o.FilledPrice)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			o.SubmittedAt.Local().Format("2006-01-02 15:04"),
			o.Symbol, o.Action, o.Quantity, o.OrderType, o.Status,
			o.FilledQty, price, o.OpID)
	}
	return w.Flush()
}
