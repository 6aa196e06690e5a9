package monitoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yavzali/catalogwatch/internal/model"
	"github.com/yavzali/catalogwatch/internal/store"
)

type fakeSource struct {
	items    []model.QueueItem
	events   []model.PriceChangeEvent
	stages   map[model.LifecycleStage]int64
	patterns []model.RetailerPattern
}

func (f *fakeSource) CountProductsByStage(context.Context) (map[model.LifecycleStage]int64, error) {
	return f.stages, nil
}

func (f *fakeSource) CountQueueItems(_ context.Context, filter store.QueueFilter) (int64, error) {
	var n int64
	for _, q := range f.items {
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		if filter.ReviewType != "" && q.ReviewType != filter.ReviewType {
			continue
		}
		if filter.Priority != "" && q.Priority != filter.Priority {
			continue
		}
		n++
	}
	return n, nil
}

func (f *fakeSource) CountPriceEvents(_ context.Context, onlyUnprocessed bool) (int64, error) {
	var n int64
	for _, ev := range f.events {
		if onlyUnprocessed && ev.Processed {
			continue
		}
		n++
	}
	return n, nil
}

func (f *fakeSource) ListPatterns(context.Context) ([]model.RetailerPattern, error) {
	return f.patterns, nil
}

func TestCollect(t *testing.T) {
	src := &fakeSource{
		items: []model.QueueItem{
			{Status: model.QueueStatusPending, ReviewType: model.ReviewModesty, Priority: model.PriorityNormal},
			{Status: model.QueueStatusPending, ReviewType: model.ReviewModesty, Priority: model.PriorityHigh},
			{Status: model.QueueStatusPending, ReviewType: model.ReviewDuplication, Priority: model.PriorityNormal},
			{Status: model.QueueStatusReviewed, ReviewType: model.ReviewModesty, Priority: model.PriorityNormal},
		},
		events: []model.PriceChangeEvent{
			{Processed: false},
			{Processed: false},
			{Processed: true},
		},
		stages: map[model.LifecycleStage]int64{
			model.StagePendingAssessment: 3,
			model.StageAssessedApproved:  12,
		},
		patterns: []model.RetailerPattern{
			{Retailer: "modestmode", SampleSize: 40, URLStabilityScore: 0.85, BestMethod: model.MethodExactURL, ConfidenceThreshold: 0.97},
		},
	}

	snap, err := NewCollector(src).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), snap.QueuePending)
	assert.Equal(t, int64(1), snap.QueuePendingHigh)
	assert.Equal(t, int64(2), snap.QueuePendingModesty)
	assert.Equal(t, int64(1), snap.QueuePendingDupes)
	assert.Equal(t, int64(2), snap.PriceEventsUnhandled)
	assert.Equal(t, int64(3), snap.ProductsByStage[model.StagePendingAssessment])
	assert.Equal(t, int64(12), snap.ProductsByStage[model.StageAssessedApproved])

	require.Len(t, snap.Patterns, 1)
	assert.Equal(t, "modestmode", snap.Patterns[0].Retailer)
	assert.Equal(t, 40, snap.Patterns[0].SampleSize)
	assert.InDelta(t, 0.85, snap.Patterns[0].URLStabilityScore, 1e-9)
}

func TestCollectEmpty(t *testing.T) {
	snap, err := NewCollector(&fakeSource{stages: map[model.LifecycleStage]int64{}}).Collect(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.QueuePending)
	assert.Zero(t, snap.PriceEventsUnhandled)
	assert.Empty(t, snap.Patterns)
}
