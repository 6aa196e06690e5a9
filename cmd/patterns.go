package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Show learned per-retailer matching patterns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		patterns, err := st.ListPatterns(ctx)
		if err != nil {
			return eris.Wrap(err, "list patterns")
		}
		if len(patterns) == 0 {
			zap.L().Info("no patterns learned yet")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RETAILER\tSAMPLES\tURL_CHANGES\tSTABILITY\tBEST_METHOD\tTHRESHOLD\tIMG_CONSISTENT")
		for _, p := range patterns {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.3f\t%s\t%.3f\t%t\n",
				p.Retailer, p.SampleSize, p.URLChangesDetected, p.URLStabilityScore,
				p.BestMethod, p.ConfidenceThreshold, p.ImageConsistent)
		}
		tw.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(patternsCmd)
}
