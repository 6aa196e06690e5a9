package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yavzali/catalogwatch/internal/model"
)

func TestImportDirectNewProducts(t *testing.T) {
	st := newFakeStore()
	r := newTestRunner(st)

	stats, err := r.ImportDirect(context.Background(), "modestmode", []model.CatalogEntry{
		{CatalogURL: "https://shop.example.com/p/1", Title: "Floral Midi Dress", Price: 89, ProductCode: "FM-1042"},
		{CatalogURL: "https://shop.example.com/p/2", Title: "Belted Trench Coat", Price: 150},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Imported)
	assert.Equal(t, 0, stats.Updated)

	require.Len(t, st.products, 2)
	for _, p := range st.products {
		assert.Equal(t, model.StageImportedDirect, p.LifecycleStage)
		assert.Equal(t, model.CompletenessFull, p.DataCompleteness)
		assert.NotNil(t, p.AssessedAt)
	}

	// Direct imports bypass assessment entirely.
	assert.Empty(t, st.queue)
}

func TestImportDirectUpdatesExisting(t *testing.T) {
	st := newFakeStore()
	ctx := context.Background()
	require.NoError(t, st.CreateProduct(ctx, &model.Product{
		Retailer:         "modestmode",
		URL:              "https://shop.example.com/p/1",
		NormalizedURL:    "https://shop.example.com/p/1",
		Title:            "Floral Midi Dress",
		Price:            89,
		LifecycleStage:   model.StageAssessedApproved,
		DataCompleteness: model.CompletenessPartial,
	}))

	r := newTestRunner(st)
	stats, err := r.ImportDirect(ctx, "modestmode", []model.CatalogEntry{
		{CatalogURL: "https://shop.example.com/p/1", Title: "Floral Midi Dress", Price: 95},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Imported)
	assert.Equal(t, 1, stats.Updated)

	p := st.products[0]
	assert.Equal(t, 95.0, p.Price)
	assert.Equal(t, model.CompletenessFull, p.DataCompleteness)
	// Feed updates never demote the lifecycle.
	assert.Equal(t, model.StageAssessedApproved, p.LifecycleStage)
}

func TestImportDirectMatchesNormalizedURL(t *testing.T) {
	st := newFakeStore()
	ctx := context.Background()
	require.NoError(t, st.CreateProduct(ctx, &model.Product{
		Retailer:         "modestmode",
		URL:              "https://shop.example.com/p/1?ref=feed",
		NormalizedURL:    "https://shop.example.com/p/1",
		Title:            "Floral Midi Dress",
		Price:            89,
		LifecycleStage:   model.StageImportedDirect,
		DataCompleteness: model.CompletenessFull,
	}))

	r := newTestRunner(st)
	stats, err := r.ImportDirect(ctx, "modestmode", []model.CatalogEntry{
		{CatalogURL: "https://shop.example.com/p/1?ref=email", Title: "Floral Midi Dress", Price: 89},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	assert.Len(t, st.products, 1)
}

func TestImportDirectSkipsMalformed(t *testing.T) {
	st := newFakeStore()
	r := newTestRunner(st)

	stats, err := r.ImportDirect(context.Background(), "modestmode", []model.CatalogEntry{
		{CatalogURL: "", Title: "Missing URL", Price: 10},
		{CatalogURL: "https://shop.example.com/p/1", Title: "", Price: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Imported)
	assert.Empty(t, st.products)
}
