package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yavzali/catalogwatch/internal/model"
	"github.com/yavzali/catalogwatch/internal/queue"
	"github.com/yavzali/catalogwatch/internal/store"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and resolve the assessment queue",
}

var (
	queueListStatus   string
	queueListType     string
	queueListPriority string
	queueListRetailer string
	queueListLimit    int
)

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assessment queue items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		items, err := st.ListQueueItems(ctx, store.QueueFilter{
			Status:     model.QueueStatus(queueListStatus),
			ReviewType: model.ReviewType(queueListType),
			Priority:   model.Priority(queueListPriority),
			Retailer:   queueListRetailer,
			Limit:      queueListLimit,
		})
		if err != nil {
			return eris.Wrap(err, "queue list")
		}

		if len(items) == 0 {
			zap.L().Info("queue is empty for the given filter")
			return nil
		}

		formatQueueItems(os.Stdout, items)
		return nil
	},
}

var queueResolveDecision string

var queueResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Record a review decision for a queue item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid queue item id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := queue.NewService(st)
		item, followUps, err := svc.ResolveItem(ctx, id, model.Decision(queueResolveDecision))
		if err != nil {
			return err
		}

		fmt.Printf("resolved item %d (%s) with decision %s\n", item.ID, item.ReviewType, item.Decision)
		for _, fu := range followUps {
			fmt.Printf("queued follow-up %d (%s, %s priority)\n", fu.ID, fu.ReviewType, fu.Priority)
		}
		return nil
	},
}

func formatQueueItems(w io.Writer, items []model.QueueItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRETAILER\tTYPE\tPRIORITY\tSTATUS\tTITLE\tPRICE\tURL")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			it.ID, it.Retailer, it.ReviewType, it.Priority, it.Status,
			truncate(it.Payload.Title, 40), it.Payload.Price, it.ProductURL)
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	queueListCmd.Flags().StringVar(&queueListStatus, "status", "pending", "filter by status (pending, reviewed)")
	queueListCmd.Flags().StringVar(&queueListType, "type", "", "filter by review type (modesty, duplication)")
	queueListCmd.Flags().StringVar(&queueListPriority, "priority", "", "filter by priority (high, normal, low)")
	queueListCmd.Flags().StringVar(&queueListRetailer, "retailer", "", "filter by retailer")
	queueListCmd.Flags().IntVar(&queueListLimit, "limit", 50, "max items to list")

	queueResolveCmd.Flags().StringVar(&queueResolveDecision, "decision", "", "review decision (required)")
	_ = queueResolveCmd.MarkFlagRequired("decision")

	queueCmd.AddCommand(queueListCmd, queueResolveCmd)
	rootCmd.AddCommand(queueCmd)
}
