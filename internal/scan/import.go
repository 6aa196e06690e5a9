package scan

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/yavzali/catalogwatch/internal/lifecycle"
	"github.com/yavzali/catalogwatch/internal/match"
	"github.com/yavzali/catalogwatch/internal/model"
)

// ImportStats summarizes a direct import.
type ImportStats struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// ImportDirect ingests full-data feed entries without human assessment:
// unknown products are created straight into the imported_direct stage,
// known ones get their price refreshed. Feed entries carry complete data,
// so matching is by exact and normalized URL only.
func (r *Runner) ImportDirect(ctx context.Context, retailer string, entries []model.CatalogEntry) (*ImportStats, error) {
	log := zap.L().With(zap.String("retailer", retailer))
	stats := &ImportStats{}

	for i := range entries {
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "import: canceled")
		}
		entry := &entries[i]
		if entry.CatalogURL == "" || entry.Title == "" {
			stats.Skipped++
			continue
		}
		entry.Retailer = retailer

		existing, err := r.store.ProductByURL(ctx, retailer, entry.CatalogURL)
		if err != nil {
			return stats, eris.Wrap(err, "import: lookup product")
		}
		if existing == nil {
			existing, err = r.store.ProductByNormalizedURL(ctx, retailer, match.NormalizeURL(entry.CatalogURL))
			if err != nil {
				return stats, eris.Wrap(err, "import: lookup product")
			}
		}

		if existing != nil {
			if entry.Price > 0 && entry.Price != existing.Price {
				if err := r.store.UpdateProductPrice(ctx, existing.ID, entry.Price); err != nil {
					return stats, eris.Wrap(err, "import: update price")
				}
			}
			if existing.DataCompleteness == model.CompletenessPartial {
				if err := r.store.UpdateProductCompleteness(ctx, existing.ID, model.CompletenessFull); err != nil {
					return stats, eris.Wrap(err, "import: update completeness")
				}
			}
			stats.Updated++
			continue
		}

		product := &model.Product{
			Retailer:         retailer,
			URL:              entry.CatalogURL,
			NormalizedURL:    match.NormalizeURL(entry.CatalogURL),
			Title:            entry.Title,
			Price:            entry.Price,
			ProductCode:      entry.ProductCode,
			ImageURLs:        entry.ImageURLs,
			LifecycleStage:   model.StageDiscovered,
			DataCompleteness: model.CompletenessFull,
		}
		if err := lifecycle.Apply(product, lifecycle.TransitionImport, time.Now().UTC()); err != nil {
			return stats, eris.Wrap(err, "import: transition")
		}
		if err := r.store.CreateProduct(ctx, product); err != nil {
			return stats, eris.Wrap(err, "import: create product")
		}
		stats.Imported++
	}

	log.Info("import: complete",
		zap.Int("imported", stats.Imported),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}
