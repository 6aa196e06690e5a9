package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Inspect detected price changes",
}

var (
	pricesListAll   bool
	pricesListLimit int
)

var pricesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List price change events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		events, err := st.ListPriceEvents(ctx, !pricesListAll, pricesListLimit)
		if err != nil {
			return eris.Wrap(err, "list price events")
		}
		if len(events) == 0 {
			zap.L().Info("no price change events")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPRODUCT\tRETAILER\tOLD\tNEW\tDELTA\tPRIORITY\tPROCESSED\tDETECTED")
		for _, ev := range events {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%.2f\t%.2f\t%+.2f\t%s\t%t\t%s\n",
				ev.ID, ev.ProductID, ev.Retailer, ev.OldPrice, ev.NewPrice, ev.Delta,
				ev.Priority, ev.Processed, ev.DetectedAt.Format("2006-01-02 15:04"))
		}
		tw.Flush()
		return nil
	},
}

var pricesProcessedCmd = &cobra.Command{
	Use:   "processed <id>",
	Short: "Mark a price change event as processed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid price event id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.MarkPriceEventProcessed(ctx, id); err != nil {
			return err
		}
		fmt.Printf("price event %d marked processed\n", id)
		return nil
	},
}

func init() {
	pricesListCmd.Flags().BoolVar(&pricesListAll, "all", false, "include processed events")
	pricesListCmd.Flags().IntVar(&pricesListLimit, "limit", 50, "max events to list")
	pricesCmd.AddCommand(pricesListCmd, pricesProcessedCmd)
	rootCmd.AddCommand(pricesCmd)
}
