// Package monitoring builds operational snapshots of the review queue,
// price pipeline and learned retailer patterns.
package monitoring

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/yavzali/catalogwatch/internal/model"
	"github.com/yavzali/catalogwatch/internal/store"
)

// PatternSummary is the per-retailer view exposed in status output.
type PatternSummary struct {
	Retailer            string            `json:"retailer"`
	SampleSize          int               `json:"sample_size"`
	URLStabilityScore   float64           `json:"url_stability_score"`
	BestMethod          model.MatchMethod `json:"best_method"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
}

// MetricsSnapshot is a point-in-time view of system health.
type MetricsSnapshot struct {
	QueuePending         int64                          `json:"queue_pending"`
	QueuePendingHigh     int64                          `json:"queue_pending_high"`
	QueuePendingModesty  int64                          `json:"queue_pending_modesty"`
	QueuePendingDupes    int64                          `json:"queue_pending_duplication"`
	PriceEventsUnhandled int64                          `json:"price_events_unprocessed"`
	ProductsByStage      map[model.LifecycleStage]int64 `json:"products_by_stage"`
	Patterns             []PatternSummary               `json:"patterns"`
}

// Source is the persistence slice the collector reads.
type Source interface {
	CountProductsByStage(ctx context.Context) (map[model.LifecycleStage]int64, error)
	CountQueueItems(ctx context.Context, f store.QueueFilter) (int64, error)
	CountPriceEvents(ctx context.Context, onlyUnprocessed bool) (int64, error)
	ListPatterns(ctx context.Context) ([]model.RetailerPattern, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	store Source
}

// NewCollector creates a Collector backed by the given store.
func NewCollector(src Source) *Collector {
	return &Collector{store: src}
}

// Collect queries the store and assembles a snapshot.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{}

	var err error
	pending := store.QueueFilter{Status: model.QueueStatusPending}
	if snap.QueuePending, err = c.store.CountQueueItems(ctx, pending); err != nil {
		return nil, eris.Wrap(err, "monitoring: count pending")
	}

	high := pending
	high.Priority = model.PriorityHigh
	if snap.QueuePendingHigh, err = c.store.CountQueueItems(ctx, high); err != nil {
		return nil, eris.Wrap(err, "monitoring: count pending high")
	}

	modesty := pending
	modesty.ReviewType = model.ReviewModesty
	if snap.QueuePendingModesty, err = c.store.CountQueueItems(ctx, modesty); err != nil {
		return nil, eris.Wrap(err, "monitoring: count pending modesty")
	}

	dupes := pending
	dupes.ReviewType = model.ReviewDuplication
	if snap.QueuePendingDupes, err = c.store.CountQueueItems(ctx, dupes); err != nil {
		return nil, eris.Wrap(err, "monitoring: count pending duplication")
	}

	if snap.PriceEventsUnhandled, err = c.store.CountPriceEvents(ctx, true); err != nil {
		return nil, eris.Wrap(err, "monitoring: count price events")
	}

	if snap.ProductsByStage, err = c.store.CountProductsByStage(ctx); err != nil {
		return nil, eris.Wrap(err, "monitoring: count products")
	}

	patterns, err := c.store.ListPatterns(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list patterns")
	}
	for _, p := range patterns {
		snap.Patterns = append(snap.Patterns, PatternSummary{
			Retailer:            p.Retailer,
			SampleSize:          p.SampleSize,
			URLStabilityScore:   p.URLStabilityScore,
			BestMethod:          p.BestMethod,
			ConfidenceThreshold: p.ConfidenceThreshold,
		})
	}

	return snap, nil
}
