package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yavzali/catalogwatch/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func productRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "retailer", "url", "normalized_url", "title", "price", "product_code",
		"image_urls", "lifecycle_stage", "data_completeness", "assessed_at", "external_ref",
		"created_at", "updated_at",
	})
}

func TestPostgresCreateScanRun(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO scan_runs`).
		WithArgs("run-1", "modestmode", "dresses", "monitor", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run := &model.ScanRun{ID: "run-1", Retailer: "modestmode", Category: "dresses", Kind: model.ScanKindMonitor}
	require.NoError(t, st.CreateScanRun(context.Background(), run))
	assert.Equal(t, model.ScanRunStatusRunning, run.Status)
	assert.False(t, run.StartedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteScanRun(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE scan_runs SET status = 'completed'`).
		WithArgs(pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.CompleteScanRun(context.Background(), "run-1", &model.ScanStats{Entries: 5, New: 2})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteScanRunNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE scan_runs SET status = 'completed'`).
		WithArgs(pgxmock.AnyArg(), "run-missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.CompleteScanRun(context.Background(), "run-missing", &model.ScanStats{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetScanRun(t *testing.T) {
	st, mock := newMockStore(t)

	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, retailer, category, kind, status, stats, error, started_at, completed_at FROM scan_runs`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "retailer", "category", "kind", "status", "stats", "error", "started_at", "completed_at"}).
			AddRow("run-1", "modestmode", "dresses", "monitor", "completed", []byte(`{"entries":5,"new":2}`), "", started, nil))

	run, err := st.GetScanRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.ScanRunStatusCompleted, run.Status)
	require.NotNil(t, run.Stats)
	assert.Equal(t, 5, run.Stats.Entries)
	assert.Equal(t, 2, run.Stats.New)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetScanRunNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, retailer, category, kind, status, stats, error, started_at, completed_at FROM scan_runs`).
		WithArgs("run-missing").
		WillReturnError(pgx.ErrNoRows)

	run, err := st.GetScanRun(context.Background(), "run-missing")
	assert.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateEntryMatch(t *testing.T) {
	st, mock := newMockStore(t)

	productID := int64(7)
	mock.ExpectExec(`UPDATE catalog_entries SET match_method = \$1`).
		WithArgs("exact_url", 1.0, "existing", &productID, "run-1", "https://shop.example.com/p/1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.UpdateEntryMatch(context.Background(), "run-1", "https://shop.example.com/p/1",
		model.MethodExactURL, 1.0, model.ClassExisting, &productID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateProduct(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO products`).
		WithArgs("modestmode", "https://shop.example.com/p/1", "https://shop.example.com/p/1",
			"Floral Midi Dress", 89.0, "", pgxmock.AnyArg(), "pending_assessment", "partial",
			pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(12)))

	p := &model.Product{
		Retailer:         "modestmode",
		URL:              "https://shop.example.com/p/1",
		NormalizedURL:    "https://shop.example.com/p/1",
		Title:            "Floral Midi Dress",
		Price:            89.0,
		LifecycleStage:   model.StagePendingAssessment,
		DataCompleteness: model.CompletenessPartial,
	}
	require.NoError(t, st.CreateProduct(context.Background(), p))
	assert.Equal(t, int64(12), p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProductByURL(t *testing.T) {
	st, mock := newMockStore(t)

	created := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM products WHERE retailer = \$1 AND url = \$2`).
		WithArgs("modestmode", "https://shop.example.com/p/1").
		WillReturnRows(productRows().AddRow(
			int64(12), "modestmode", "https://shop.example.com/p/1", "https://shop.example.com/p/1",
			"Floral Midi Dress", 89.0, "FM-1042", []byte(`["https://cdn.example.com/a.jpg"]`),
			"assessed_approved", "full", nil, "", created, created,
		))

	p, err := st.ProductByURL(context.Background(), "modestmode", "https://shop.example.com/p/1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(12), p.ID)
	assert.Equal(t, model.StageAssessedApproved, p.LifecycleStage)
	assert.Equal(t, []string{"https://cdn.example.com/a.jpg"}, p.ImageURLs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProductByURLNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM products WHERE retailer = \$1 AND url = \$2`).
		WithArgs("modestmode", "https://shop.example.com/p/missing").
		WillReturnError(pgx.ErrNoRows)

	p, err := st.ProductByURL(context.Background(), "modestmode", "https://shop.example.com/p/missing")
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProductsByPriceBand(t *testing.T) {
	st, mock := newMockStore(t)

	created := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM products WHERE retailer = \$1 AND price BETWEEN \$2 AND \$3`).
		WithArgs("modestmode", 44.5, 133.5).
		WillReturnRows(productRows().AddRow(
			int64(1), "modestmode", "https://shop.example.com/p/1", "https://shop.example.com/p/1",
			"Floral Midi Dress", 89.0, "", []byte(`[]`), "assessed_approved", "full", nil, "", created, created,
		))

	products, err := st.ProductsByPriceBand(context.Background(), "modestmode", 44.5, 133.5)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 89.0, products[0].Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateProductPriceNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE products SET price = \$1`).
		WithArgs(95.0, int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdateProductPrice(context.Background(), 99, 95.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetPattern(t *testing.T) {
	st, mock := newMockStore(t)

	updated := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM retailer_patterns WHERE retailer = \$1`).
		WithArgs("modestmode").
		WillReturnRows(pgxmock.NewRows([]string{
			"retailer", "sample_size", "url_changes_detected", "url_stability_score",
			"best_method", "confidence_threshold", "image_consistent", "method_stats", "updated_at",
		}).AddRow("modestmode", 12, 3, 0.75, "exact_url", 0.92, false,
			[]byte(`{"exact_url":{"count":9,"confidence_sum":9}}`), updated))

	p, err := st.GetPattern(context.Background(), "modestmode")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 12, p.SampleSize)
	assert.InDelta(t, 0.75, p.URLStabilityScore, 1e-9)
	assert.Equal(t, 9, p.MethodStats[model.MethodExactURL].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetPatternUnseenRetailer(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM retailer_patterns WHERE retailer = \$1`).
		WithArgs("newretailer").
		WillReturnError(pgx.ErrNoRows)

	p, err := st.GetPattern(context.Background(), "newretailer")
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertPattern(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO retailer_patterns`).
		WithArgs("modestmode", 13, 3, pgxmock.AnyArg(), "exact_url", pgxmock.AnyArg(), false,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p := model.DefaultPattern("modestmode")
	p.SampleSize = 13
	p.URLChangesDetected = 3
	p.URLStabilityScore = 1 - 3.0/13.0
	require.NoError(t, st.UpsertPattern(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEnqueueItem(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO assessment_queue`).
		WithArgs("modestmode", "https://shop.example.com/p/1", pgxmock.AnyArg(), "modesty", "normal",
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))

	item := &model.QueueItem{
		Retailer:   "modestmode",
		ProductURL: "https://shop.example.com/p/1",
		Payload:    model.ProductPayload{Title: "Floral Midi Dress", Price: 89, CatalogURL: "https://shop.example.com/p/1"},
		ReviewType: model.ReviewModesty,
		Priority:   model.PriorityNormal,
	}
	id, err := st.EnqueueItem(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, int64(5), item.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEnqueueItemPendingDuplicate(t *testing.T) {
	st, mock := newMockStore(t)

	// The partial unique index swallows the insert; the existing pending
	// item's id comes back from the fallback lookup.
	mock.ExpectQuery(`INSERT INTO assessment_queue`).
		WithArgs("modestmode", "https://shop.example.com/p/1", pgxmock.AnyArg(), "modesty", "normal",
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT id FROM assessment_queue WHERE retailer = \$1 AND product_url = \$2`).
		WithArgs("modestmode", "https://shop.example.com/p/1", "modesty").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	item := &model.QueueItem{
		Retailer:   "modestmode",
		ProductURL: "https://shop.example.com/p/1",
		ReviewType: model.ReviewModesty,
		Priority:   model.PriorityNormal,
	}
	id, err := st.EnqueueItem(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkItemReviewed(t *testing.T) {
	st, mock := newMockStore(t)

	reviewedAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE assessment_queue SET status = 'reviewed'`).
		WithArgs("not_duplicate", &reviewedAt, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO assessment_queue`).
		WithArgs("modestmode", "https://shop.example.com/p/1", pgxmock.AnyArg(), "modesty", "high",
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectCommit()

	item := &model.QueueItem{
		ID:         3,
		Retailer:   "modestmode",
		ProductURL: "https://shop.example.com/p/1",
		ReviewType: model.ReviewDuplication,
		Status:     model.QueueStatusReviewed,
		Decision:   model.DecisionNotDuplicate,
		ReviewedAt: &reviewedAt,
	}
	followUps := []model.QueueItem{{
		Retailer:   "modestmode",
		ProductURL: "https://shop.example.com/p/1",
		ReviewType: model.ReviewModesty,
		Priority:   model.PriorityHigh,
		Status:     model.QueueStatusPending,
		CreatedAt:  reviewedAt,
	}}
	require.NoError(t, st.MarkItemReviewed(context.Background(), item, followUps))
	assert.Equal(t, int64(4), followUps[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkItemReviewedNotPending(t *testing.T) {
	st, mock := newMockStore(t)

	reviewedAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE assessment_queue SET status = 'reviewed'`).
		WithArgs("modest", &reviewedAt, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	item := &model.QueueItem{ID: 3, Decision: model.DecisionModest, ReviewedAt: &reviewedAt}
	err := st.MarkItemReviewed(context.Background(), item, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not pending")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertPriceEvent(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO price_change_events`).
		WithArgs(int64(12), "modestmode", 89.0, 120.0, 31.0, "normal", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))

	ev := &model.PriceChangeEvent{
		ProductID: 12,
		Retailer:  "modestmode",
		OldPrice:  89.0,
		NewPrice:  120.0,
		Delta:     31.0,
		Priority:  model.PriorityNormal,
	}
	require.NoError(t, st.InsertPriceEvent(context.Background(), ev))
	assert.Equal(t, int64(8), ev.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkPriceEventProcessedNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE price_change_events SET processed = true`).
		WithArgs(int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.MarkPriceEventProcessed(context.Background(), 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountPriceEvents(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM price_change_events WHERE processed = false`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))

	n, err := st.CountPriceEvents(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountQueueItems(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM assessment_queue WHERE true AND status = \$1 AND review_type = \$2`).
		WithArgs("pending", "modesty").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := st.CountQueueItems(context.Background(), QueueFilter{
		Status:     model.QueueStatusPending,
		ReviewType: model.ReviewModesty,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
