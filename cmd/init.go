package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yavzali/catalogwatch/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.yaml",
	// Skip the root PersistentPreRunE: init must work before a config exists.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		const path = "config.yaml"
		if !initForce {
			if _, err := os.Stat(path); err == nil {
				return eris.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}

		starter := config.Config{
			Store: config.StoreConfig{
				Driver:      "postgres",
				DatabaseURL: "postgres://localhost:5432/catalogwatch",
				MaxConns:    10,
				MinConns:    2,
			},
			Match: config.MatchConfig{
				PriceToleranceAbs: 1.00,
				PriceTolerancePct: 0.05,
				CandidateBandPct:  0.50,
			},
			Classify: config.ClassifyConfig{
				UpperThreshold:     0.85,
				LowerThreshold:     0.70,
				BootstrapMinSample: 10,
			},
			Price: config.PriceConfig{
				MinDelta:          0.01,
				HighPriorityDelta: 50.00,
			},
			Fetch: config.FetchConfig{
				TimeoutSecs:       30,
				RequestsPerSecond: 2,
				Burst:             4,
				UserAgent:         "catalogwatch/1.0",
			},
			Feed: config.FeedConfig{
				Path: "/",
			},
			Server: config.ServerConfig{Port: 8080},
			Log:    config.LogConfig{Level: "info", Format: "json"},
		}

		data, err := yaml.Marshal(&starter)
		if err != nil {
			return eris.Wrap(err, "marshal starter config")
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return eris.Wrap(err, "write config file")
		}

		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config.yaml")
	rootCmd.AddCommand(initCmd)
}
