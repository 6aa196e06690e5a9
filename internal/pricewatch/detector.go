// Package pricewatch runs the secondary pass over confirmed matches and
// emits price divergence events for the external price-update pipeline.
package pricewatch

import (
	"math"
	"time"

	"github.com/yavzali/catalogwatch/internal/model"
)

// Config holds the detection thresholds.
type Config struct {
	// MinDelta is the smallest absolute price difference (dollars) that
	// counts as a change.
	MinDelta float64 `yaml:"min_delta" mapstructure:"min_delta"`
	// HighPriorityDelta is the absolute difference above which the event is
	// flagged high priority.
	HighPriorityDelta float64 `yaml:"high_priority_delta" mapstructure:"high_priority_delta"`
}

// DefaultConfig returns the standard thresholds: a cent triggers, $50 escalates.
func DefaultConfig() Config {
	return Config{MinDelta: 0.01, HighPriorityDelta: 50.00}
}

// Detect compares an entry's observed price to the linked product's tracked
// price and returns a PriceChangeEvent, or nil when the prices agree within
// tolerance. Entries without a usable price never produce an event.
func Detect(product *model.Product, entry *model.CatalogEntry, cfg Config, now time.Time) *model.PriceChangeEvent {
	if entry.Price <= 0 {
		return nil
	}
	delta := entry.Price - product.Price
	if math.Abs(delta) < cfg.MinDelta {
		return nil
	}

	priority := model.PriorityNormal
	if math.Abs(delta) > cfg.HighPriorityDelta {
		priority = model.PriorityHigh
	}

	return &model.PriceChangeEvent{
		ProductID:  product.ID,
		Retailer:   product.Retailer,
		OldPrice:   product.Price,
		NewPrice:   entry.Price,
		Delta:      delta,
		Priority:   priority,
		DetectedAt: now.UTC(),
	}
}
