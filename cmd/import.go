package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yavzali/catalogwatch/internal/fetcher"
	"github.com/yavzali/catalogwatch/internal/model"
)

var (
	importRetailer string
	importFeed     string
	importFromFTP  bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a full-data retailer feed directly",
	Long:  "Ingests a product feed with complete data. Unknown products go straight to the imported stage without human assessment; known products get a price refresh.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		runner := initRunner(st)

		entries, err := loadFeed(importFeed)
		if err != nil {
			return err
		}

		stats, err := runner.ImportDirect(ctx, importRetailer, entries)
		if err != nil {
			return eris.Wrap(err, "import feed")
		}

		zap.L().Info("import complete",
			zap.String("retailer", importRetailer),
			zap.Int("imported", stats.Imported),
			zap.Int("updated", stats.Updated),
			zap.Int("skipped", stats.Skipped),
		)
		return nil
	},
}

// loadFeed reads feed entries from a local CSV/XLSX file or, with --ftp,
// from the configured feed server.
func loadFeed(name string) ([]model.CatalogEntry, error) {
	if importFromFTP {
		if cfg.Feed.Host == "" {
			return nil, eris.New("feed host is required (CATALOGWATCH_FEED_HOST)")
		}
		r, err := fetcher.NewFTPFetcher(cfg.Feed).Fetch(name)
		if err != nil {
			return nil, err
		}
		defer r.Close()

		if strings.EqualFold(filepath.Ext(name), ".xlsx") {
			return parseXLSXStream(r, name)
		}
		return fetcher.ParseCSVFeed(r)
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return fetcher.ParseXLSXFeed(name)
	case ".csv":
		f, err := os.Open(name)
		if err != nil {
			return nil, eris.Wrap(err, "open feed")
		}
		defer f.Close()
		return fetcher.ParseCSVFeed(f)
	default:
		return nil, eris.Errorf("unsupported feed format: %s", filepath.Ext(name))
	}
}

// parseXLSXStream spools an XLSX stream to a temp file since the parser
// needs random access.
func parseXLSXStream(r io.Reader, name string) ([]model.CatalogEntry, error) {
	tmp, err := os.CreateTemp("", "catalogwatch-feed-*.xlsx")
	if err != nil {
		return nil, eris.Wrap(err, "create temp feed file")
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, r); err != nil {
		return nil, eris.Wrapf(err, "spool feed %s", name)
	}
	return fetcher.ParseXLSXFeed(tmp.Name())
}

func init() {
	importCmd.Flags().StringVar(&importRetailer, "retailer", "", "retailer identifier (required)")
	importCmd.Flags().StringVar(&importFeed, "feed", "", "feed file path, or remote filename with --ftp (required)")
	importCmd.Flags().BoolVar(&importFromFTP, "ftp", false, "fetch the feed from the configured FTP server")
	_ = importCmd.MarkFlagRequired("retailer")
	_ = importCmd.MarkFlagRequired("feed")
	rootCmd.AddCommand(importCmd)
}
