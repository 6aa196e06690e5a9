package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yavzali/catalogwatch/internal/fetcher"
	"github.com/yavzali/catalogwatch/internal/model"
	"github.com/yavzali/catalogwatch/internal/scan"
)

var (
	scanRetailer string
	scanCategory string
	scanInput    string
	scanBaseline bool
	scanManifest string
)

// scanManifestFile is the YAML shape accepted by --manifest.
type scanManifestFile struct {
	Jobs []struct {
		Retailer string `yaml:"retailer"`
		Category string `yaml:"category"`
		Kind     string `yaml:"kind"`
		Input    string `yaml:"input"`
	} `yaml:"jobs"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run change detection over catalog snapshots",
	Long:  "Processes a catalog snapshot for one retailer, or a manifest of snapshots for several. Retailers are scanned in parallel; snapshots for the same retailer run in order.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		runner := initRunner(st)

		if scanManifest != "" {
			jobs, err := loadManifest(ctx, scanManifest)
			if err != nil {
				return err
			}
			runs, err := runner.RunAll(ctx, jobs)
			if err != nil {
				return err
			}
			zap.L().Info("scan manifest complete", zap.Int("runs", len(runs)))
			return nil
		}

		if scanRetailer == "" || scanInput == "" {
			return eris.New("either --manifest or both --retailer and --input are required")
		}

		entries, err := loadSnapshot(ctx, scanInput)
		if err != nil {
			return err
		}

		kind := model.ScanKindMonitor
		if scanBaseline {
			kind = model.ScanKindBaseline
		}

		run, err := runner.Run(ctx, scan.Job{
			Retailer: scanRetailer,
			Category: scanCategory,
			Kind:     kind,
			Entries:  entries,
		})
		if err != nil {
			return err
		}

		zap.L().Info("scan complete", zap.String("run_id", run.ID))
		return nil
	},
}

func loadManifest(ctx context.Context, path string) ([]scan.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read manifest")
	}
	var mf scanManifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, eris.Wrap(err, "parse manifest")
	}

	var jobs []scan.Job
	for _, j := range mf.Jobs {
		if j.Retailer == "" || j.Input == "" {
			return nil, eris.New("manifest job missing retailer or input")
		}
		entries, err := loadSnapshot(ctx, j.Input)
		if err != nil {
			return nil, err
		}
		kind := model.ScanKindMonitor
		if j.Kind == string(model.ScanKindBaseline) {
			kind = model.ScanKindBaseline
		}
		jobs = append(jobs, scan.Job{
			Retailer: j.Retailer,
			Category: j.Category,
			Kind:     kind,
			Entries:  entries,
		})
	}
	return jobs, nil
}

// loadSnapshot reads catalog entries from a local file or an HTTP URL.
// JSON snapshots come from the scraping layer; CSV comes from feed exports.
func loadSnapshot(ctx context.Context, input string) ([]model.CatalogEntry, error) {
	var r io.ReadCloser
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		var err error
		r, err = fetcher.NewHTTPFetcher(cfg.Fetch).Download(ctx, input)
		if err != nil {
			return nil, err
		}
	} else {
		f, err := os.Open(input)
		if err != nil {
			return nil, eris.Wrap(err, "open snapshot")
		}
		r = f
	}
	defer r.Close()

	if strings.EqualFold(filepath.Ext(strings.SplitN(input, "?", 2)[0]), ".csv") {
		return fetcher.ParseCSVFeed(r)
	}
	return fetcher.ParseJSONSnapshot(r)
}

func init() {
	scanCmd.Flags().StringVar(&scanRetailer, "retailer", "", "retailer identifier")
	scanCmd.Flags().StringVar(&scanCategory, "category", "", "catalog category")
	scanCmd.Flags().StringVar(&scanInput, "input", "", "snapshot file or URL (.json or .csv)")
	scanCmd.Flags().BoolVar(&scanBaseline, "baseline", false, "record a baseline scan instead of a monitoring pass")
	scanCmd.Flags().StringVar(&scanManifest, "manifest", "", "YAML manifest of scan jobs")
	rootCmd.AddCommand(scanCmd)
}
