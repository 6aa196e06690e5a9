package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yavzali/catalogwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "catalogwatch",
	Short: "Retailer catalog change detection and deduplication",
	Long:  "Compares catalog snapshots against tracked products, classifies each listing as existing, suspected duplicate or new, routes review work, and learns per-retailer matching patterns.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
