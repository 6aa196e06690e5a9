// Package store persists the catalog monitoring state: the append-only
// snapshot log, the canonical product table, per-retailer patterns, the
// assessment queue and price change events. Two backends are provided:
// PostgreSQL (pgx) for shared deployments and SQLite for local single-user
// operation.
package store

import (
	"context"

	"github.com/yavzali/catalogwatch/internal/model"
)

// QueueFilter specifies criteria for listing assessment queue items.
type QueueFilter struct {
	Status     model.QueueStatus `json:"status,omitempty"`
	ReviewType model.ReviewType  `json:"review_type,omitempty"`
	Priority   model.Priority    `json:"priority,omitempty"`
	Retailer   string            `json:"retailer,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for the change-detection core.
type Store interface {
	// Scan runs
	CreateScanRun(ctx context.Context, run *model.ScanRun) error
	CompleteScanRun(ctx context.Context, id string, stats *model.ScanStats) error
	FailScanRun(ctx context.Context, id string, errMsg string) error
	GetScanRun(ctx context.Context, id string) (*model.ScanRun, error)

	// Snapshot log (append-only; only match audit columns are updated)
	InsertEntries(ctx context.Context, entries []model.CatalogEntry) (int64, error)
	UpdateEntryMatch(ctx context.Context, runID, catalogURL string, method model.MatchMethod, confidence float64, class model.Classification, productID *int64) error
	ListEntries(ctx context.Context, runID string) ([]model.CatalogEntry, error)

	// Products
	CreateProduct(ctx context.Context, p *model.Product) error
	ProductByURL(ctx context.Context, retailer, url string) (*model.Product, error)
	ProductByNormalizedURL(ctx context.Context, retailer, normalizedURL string) (*model.Product, error)
	ProductByCode(ctx context.Context, retailer, code string) (*model.Product, error)
	ProductsByPriceBand(ctx context.Context, retailer string, low, high float64) ([]model.Product, error)
	ListProducts(ctx context.Context, retailer string, limit, offset int) ([]model.Product, error)
	UpdateProductPrice(ctx context.Context, id int64, price float64) error
	UpdateProductLifecycle(ctx context.Context, p *model.Product) error
	UpdateProductCompleteness(ctx context.Context, id int64, c model.Completeness) error

	// Retailer patterns
	GetPattern(ctx context.Context, retailer string) (*model.RetailerPattern, error)
	UpsertPattern(ctx context.Context, p *model.RetailerPattern) error
	ListPatterns(ctx context.Context) ([]model.RetailerPattern, error)

	// Assessment queue
	EnqueueItem(ctx context.Context, item *model.QueueItem) (int64, error)
	GetQueueItem(ctx context.Context, id int64) (*model.QueueItem, error)
	ListQueueItems(ctx context.Context, f QueueFilter) ([]model.QueueItem, error)
	MarkItemReviewed(ctx context.Context, item *model.QueueItem, followUps []model.QueueItem) error

	// Price change events
	InsertPriceEvent(ctx context.Context, ev *model.PriceChangeEvent) error
	ListPriceEvents(ctx context.Context, onlyUnprocessed bool, limit int) ([]model.PriceChangeEvent, error)
	MarkPriceEventProcessed(ctx context.Context, id int64) error

	// Status counters
	CountProductsByStage(ctx context.Context) (map[model.LifecycleStage]int64, error)
	CountQueueItems(ctx context.Context, f QueueFilter) (int64, error)
	CountPriceEvents(ctx context.Context, onlyUnprocessed bool) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
