package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yavzali/catalogwatch/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue, price pipeline and pattern health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := monitoring.NewCollector(st).Collect(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Assessment queue: %d pending (%d high priority, %d modesty, %d duplication)\n",
			snap.QueuePending, snap.QueuePendingHigh, snap.QueuePendingModesty, snap.QueuePendingDupes)
		fmt.Printf("Price events awaiting processing: %d\n", snap.PriceEventsUnhandled)

		if len(snap.ProductsByStage) > 0 {
			fmt.Println("\nProducts by lifecycle stage:")
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for stage, n := range snap.ProductsByStage {
				fmt.Fprintf(tw, "  %s\t%d\n", stage, n)
			}
			tw.Flush()
		}

		if len(snap.Patterns) > 0 {
			fmt.Println("\nRetailer patterns:")
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "  RETAILER\tSAMPLES\tSTABILITY\tBEST_METHOD\tTHRESHOLD")
			for _, p := range snap.Patterns {
				fmt.Fprintf(tw, "  %s\t%d\t%.3f\t%s\t%.3f\n",
					p.Retailer, p.SampleSize, p.URLStabilityScore, p.BestMethod, p.ConfidenceThreshold)
			}
			tw.Flush()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
