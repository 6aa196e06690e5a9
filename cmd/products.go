package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	productsRetailer string
	productsLimit    int
	productsOffset   int
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List tracked products",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		products, err := st.ListProducts(ctx, productsRetailer, productsLimit, productsOffset)
		if err != nil {
			return eris.Wrap(err, "list products")
		}
		if len(products) == 0 {
			zap.L().Info("no products tracked")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tRETAILER\tSTAGE\tCOMPLETENESS\tPRICE\tTITLE")
		for _, p := range products {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.2f\t%s\n",
				p.ID, p.Retailer, p.LifecycleStage, p.DataCompleteness, p.Price, truncate(p.Title, 50))
		}
		tw.Flush()
		return nil
	},
}

func init() {
	productsCmd.Flags().StringVar(&productsRetailer, "retailer", "", "filter by retailer")
	productsCmd.Flags().IntVar(&productsLimit, "limit", 50, "max products to list")
	productsCmd.Flags().IntVar(&productsOffset, "offset", 0, "pagination offset")
	rootCmd.AddCommand(productsCmd)
}
