package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/yavzali/catalogwatch/internal/db"
	"github.com/yavzali/catalogwatch/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest match-path lookups.
var preparedStatements = map[string]string{
	"product_by_url":      `SELECT ` + productColumns + ` FROM products WHERE retailer = $1 AND url = $2`,
	"product_by_norm_url": `SELECT ` + productColumns + ` FROM products WHERE retailer = $1 AND normalized_url = $2`,
	"product_by_code":     `SELECT ` + productColumns + ` FROM products WHERE retailer = $1 AND product_code = $2`,
	"get_pattern":         `SELECT ` + patternColumns + ` FROM retailer_patterns WHERE retailer = $1`,
	"update_entry_match":  `UPDATE catalog_entries SET match_method = $1, match_confidence = $2, classification = $3, matched_product_id = $4 WHERE run_id = $5 AND catalog_url = $6`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool (used by tests with pgxmock).
// The store does not own the pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id           TEXT PRIMARY KEY,
	retailer     TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	stats        JSONB,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS catalog_entries (
	id                 BIGSERIAL PRIMARY KEY,
	run_id             TEXT NOT NULL REFERENCES scan_runs(id),
	retailer           TEXT NOT NULL,
	category           TEXT NOT NULL DEFAULT '',
	catalog_url        TEXT NOT NULL,
	title              TEXT NOT NULL DEFAULT '',
	price              DOUBLE PRECISION NOT NULL DEFAULT 0,
	product_code       TEXT NOT NULL DEFAULT '',
	image_urls         JSONB NOT NULL DEFAULT '[]',
	scan_kind          TEXT NOT NULL,
	discovered_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	match_method       TEXT NOT NULL DEFAULT '',
	match_confidence   DOUBLE PRECISION,
	classification     TEXT NOT NULL DEFAULT '',
	matched_product_id BIGINT,
	UNIQUE (run_id, catalog_url)
);

CREATE INDEX IF NOT EXISTS idx_catalog_entries_run ON catalog_entries(run_id);
CREATE INDEX IF NOT EXISTS idx_catalog_entries_retailer ON catalog_entries(retailer, discovered_at DESC);

CREATE TABLE IF NOT EXISTS products (
	id                BIGSERIAL PRIMARY KEY,
	retailer          TEXT NOT NULL,
	url               TEXT NOT NULL,
	normalized_url    TEXT NOT NULL,
	title             TEXT NOT NULL DEFAULT '',
	price             DOUBLE PRECISION NOT NULL DEFAULT 0,
	product_code      TEXT NOT NULL DEFAULT '',
	image_urls        JSONB NOT NULL DEFAULT '[]',
	lifecycle_stage   TEXT NOT NULL DEFAULT 'discovered',
	data_completeness TEXT NOT NULL DEFAULT 'partial',
	assessed_at       TIMESTAMPTZ,
	external_ref      TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (retailer, url)
);

CREATE INDEX IF NOT EXISTS idx_products_norm_url ON products(retailer, normalized_url);
CREATE INDEX IF NOT EXISTS idx_products_code ON products(retailer, product_code);
CREATE INDEX IF NOT EXISTS idx_products_price ON products(retailer, price);
CREATE INDEX IF NOT EXISTS idx_products_stage ON products(lifecycle_stage);

CREATE TABLE IF NOT EXISTS retailer_patterns (
	retailer             TEXT PRIMARY KEY,
	sample_size          INTEGER NOT NULL DEFAULT 0,
	url_changes_detected INTEGER NOT NULL DEFAULT 0,
	url_stability_score  DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	best_method          TEXT NOT NULL DEFAULT 'exact_url',
	confidence_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
	image_consistent     BOOLEAN NOT NULL DEFAULT false,
	method_stats         JSONB NOT NULL DEFAULT '{}',
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assessment_queue (
	id                 BIGSERIAL PRIMARY KEY,
	retailer           TEXT NOT NULL,
	product_url        TEXT NOT NULL,
	payload            JSONB NOT NULL,
	review_type        TEXT NOT NULL,
	priority           TEXT NOT NULL DEFAULT 'normal',
	status             TEXT NOT NULL DEFAULT 'pending',
	decision           TEXT NOT NULL DEFAULT '',
	suspected_match_id BIGINT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	reviewed_at        TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_pending_unique
	ON assessment_queue(retailer, product_url, review_type) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_queue_status ON assessment_queue(status, priority);

CREATE TABLE IF NOT EXISTS price_change_events (
	id          BIGSERIAL PRIMARY KEY,
	product_id  BIGINT NOT NULL REFERENCES products(id),
	retailer    TEXT NOT NULL,
	old_price   DOUBLE PRECISION NOT NULL,
	new_price   DOUBLE PRECISION NOT NULL,
	delta       DOUBLE PRECISION NOT NULL,
	priority    TEXT NOT NULL DEFAULT 'normal',
	detected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed   BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_price_events_processed ON price_change_events(processed, detected_at);
`

const productColumns = `id, retailer, url, normalized_url, title, price, product_code, image_urls, lifecycle_stage, data_completeness, assessed_at, external_ref, created_at, updated_at`

const patternColumns = `retailer, sample_size, url_changes_detected, url_stability_score, best_method, confidence_threshold, image_consistent, method_stats, updated_at`

const queueColumns = `id, retailer, product_url, payload, review_type, priority, status, decision, suspected_match_id, created_at, reviewed_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Scan runs

func (s *PostgresStore) CreateScanRun(ctx context.Context, run *model.ScanRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = model.ScanRunStatusRunning

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_runs (id, retailer, category, kind, status, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Retailer, run.Category, string(run.Kind), string(run.Status), run.StartedAt,
	)
	return eris.Wrap(err, "postgres: insert scan run")
}

func (s *PostgresStore) CompleteScanRun(ctx context.Context, id string, stats *model.ScanStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal scan stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scan_runs SET status = 'completed', stats = $1, completed_at = now() WHERE id = $2`,
		statsJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete scan run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("scan run not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) FailScanRun(ctx context.Context, id string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE scan_runs SET status = 'failed', error = $1, completed_at = now() WHERE id = $2`,
		errMsg, id,
	)
	return eris.Wrapf(err, "postgres: fail scan run %s", id)
}

func (s *PostgresStore) GetScanRun(ctx context.Context, id string) (*model.ScanRun, error) {
	var r model.ScanRun
	var statsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, retailer, category, kind, status, stats, error, started_at, completed_at FROM scan_runs WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Retailer, &r.Category, &r.Kind, &r.Status, &statsJSON, &r.Error, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get scan run %s", id)
	}
	if statsJSON != nil {
		r.Stats = &model.ScanStats{}
		if err := json.Unmarshal(statsJSON, r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal scan stats")
		}
	}
	return &r, nil
}

// Snapshot log

// InsertEntries bulk-inserts snapshot entries, conflict-keyed on
// (run_id, catalog_url) so a crash-retry replay is a no-op.
func (s *PostgresStore) InsertEntries(ctx context.Context, entries []model.CatalogEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(entries))
	for i, e := range entries {
		imagesJSON, err := json.Marshal(e.ImageURLs)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal image urls")
		}
		discovered := e.DiscoveredAt
		if discovered.IsZero() {
			discovered = time.Now().UTC()
		}
		rows[i] = []any{
			e.RunID, e.Retailer, e.Category, e.CatalogURL, e.Title, e.Price,
			e.ProductCode, imagesJSON, string(e.ScanKind), discovered,
		}
	}

	cfg := db.UpsertConfig{
		Table: "catalog_entries",
		Columns: []string{
			"run_id", "retailer", "category", "catalog_url", "title", "price",
			"product_code", "image_urls", "scan_kind", "discovered_at",
		},
		ConflictKeys: []string{"run_id", "catalog_url"},
		DoNothing:    true,
	}

	n, err := db.BulkUpsert(ctx, s.pool, cfg, rows)
	return n, eris.Wrap(err, "postgres: insert entries")
}

func (s *PostgresStore) UpdateEntryMatch(ctx context.Context, runID, catalogURL string, method model.MatchMethod, confidence float64, class model.Classification, productID *int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE catalog_entries SET match_method = $1, match_confidence = $2, classification = $3, matched_product_id = $4
		 WHERE run_id = $5 AND catalog_url = $6`,
		string(method), confidence, string(class), productID, runID, catalogURL,
	)
	return eris.Wrap(err, "postgres: update entry match")
}

func (s *PostgresStore) ListEntries(ctx context.Context, runID string) ([]model.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, retailer, category, catalog_url, title, price, product_code, image_urls,
		        scan_kind, discovered_at, match_method, match_confidence, classification, matched_product_id
		 FROM catalog_entries WHERE run_id = $1 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entries")
	}
	defer rows.Close()

	var entries []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		var imagesJSON []byte
		if err := rows.Scan(&e.ID, &e.RunID, &e.Retailer, &e.Category, &e.CatalogURL, &e.Title, &e.Price,
			&e.ProductCode, &imagesJSON, &e.ScanKind, &e.DiscoveredAt,
			&e.MatchMethod, &e.MatchConfidence, &e.Classification, &e.MatchedProductID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entry")
		}
		if err := json.Unmarshal(imagesJSON, &e.ImageURLs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal entry images")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list entries iterate")
}

// Products

func (s *PostgresStore) CreateProduct(ctx context.Context, p *model.Product) error {
	imagesJSON, err := json.Marshal(p.ImageURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal product images")
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	err = s.pool.QueryRow(ctx,
		`INSERT INTO products (retailer, url, normalized_url, title, price, product_code, image_urls,
		                       lifecycle_stage, data_completeness, assessed_at, external_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		p.Retailer, p.URL, p.NormalizedURL, p.Title, p.Price, p.ProductCode, imagesJSON,
		string(p.LifecycleStage), string(p.DataCompleteness), p.AssessedAt, p.ExternalRef, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	return eris.Wrap(err, "postgres: insert product")
}

func (s *PostgresStore) ProductByURL(ctx context.Context, retailer, url string) (*model.Product, error) {
	return s.productBy(ctx, `SELECT `+productColumns+` FROM products WHERE retailer = $1 AND url = $2`, retailer, url)
}

func (s *PostgresStore) ProductByNormalizedURL(ctx context.Context, retailer, normalizedURL string) (*model.Product, error) {
	return s.productBy(ctx, `SELECT `+productColumns+` FROM products WHERE retailer = $1 AND normalized_url = $2`, retailer, normalizedURL)
}

func (s *PostgresStore) ProductByCode(ctx context.Context, retailer, code string) (*model.Product, error) {
	return s.productBy(ctx, `SELECT `+productColumns+` FROM products WHERE retailer = $1 AND product_code = $2`, retailer, code)
}

func (s *PostgresStore) productBy(ctx context.Context, query string, args ...any) (*model.Product, error) {
	p, err := scanProductRow(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get product")
	}
	return p, nil
}

// ProductsByPriceBand returns the retailer's products priced within
// [low, high]; low = high = 0 lifts the price bound.
func (s *PostgresStore) ProductsByPriceBand(ctx context.Context, retailer string, low, high float64) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE retailer = $1`
	args := []any{retailer}
	if low > 0 || high > 0 {
		query += ` AND price BETWEEN $2 AND $3`
		args = append(args, low, high)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: products by price band")
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (s *PostgresStore) ListProducts(ctx context.Context, retailer string, limit, offset int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE true`
	args := []any{}
	argIdx := 1
	if retailer != "" {
		query += fmt.Sprintf(` AND retailer = $%d`, argIdx)
		args = append(args, retailer)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (s *PostgresStore) UpdateProductPrice(ctx context.Context, id int64, price float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET price = $1, updated_at = now() WHERE id = $2`,
		price, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update product price %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("product not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) UpdateProductLifecycle(ctx context.Context, p *model.Product) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET lifecycle_stage = $1, assessed_at = $2, updated_at = $3 WHERE id = $4`,
		string(p.LifecycleStage), p.AssessedAt, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update product lifecycle %d", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("product not found: %d", p.ID)
	}
	return nil
}

func (s *PostgresStore) UpdateProductCompleteness(ctx context.Context, id int64, c model.Completeness) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET data_completeness = $1, updated_at = now() WHERE id = $2`,
		string(c), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update product completeness %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("product not found: %d", id)
	}
	return nil
}

func scanProductRow(row pgx.Row) (*model.Product, error) {
	var p model.Product
	var imagesJSON []byte
	err := row.Scan(&p.ID, &p.Retailer, &p.URL, &p.NormalizedURL, &p.Title, &p.Price, &p.ProductCode,
		&imagesJSON, &p.LifecycleStage, &p.DataCompleteness, &p.AssessedAt, &p.ExternalRef, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(imagesJSON, &p.ImageURLs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal product images")
	}
	return &p, nil
}

func scanProducts(rows pgx.Rows) ([]model.Product, error) {
	var products []model.Product
	for rows.Next() {
		p, err := scanProductRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: products iterate")
}

// Retailer patterns

func (s *PostgresStore) GetPattern(ctx context.Context, retailer string) (*model.RetailerPattern, error) {
	var p model.RetailerPattern
	var statsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT `+patternColumns+` FROM retailer_patterns WHERE retailer = $1`,
		retailer,
	).Scan(&p.Retailer, &p.SampleSize, &p.URLChangesDetected, &p.URLStabilityScore,
		&p.BestMethod, &p.ConfidenceThreshold, &p.ImageConsistent, &statsJSON, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get pattern %s", retailer)
	}
	if err := json.Unmarshal(statsJSON, &p.MethodStats); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal method stats")
	}
	return &p, nil
}

func (s *PostgresStore) UpsertPattern(ctx context.Context, p *model.RetailerPattern) error {
	statsJSON, err := json.Marshal(p.MethodStats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal method stats")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO retailer_patterns (retailer, sample_size, url_changes_detected, url_stability_score,
		                                best_method, confidence_threshold, image_consistent, method_stats, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (retailer) DO UPDATE SET
		   sample_size = $2, url_changes_detected = $3, url_stability_score = $4,
		   best_method = $5, confidence_threshold = $6, image_consistent = $7,
		   method_stats = $8, updated_at = $9`,
		p.Retailer, p.SampleSize, p.URLChangesDetected, p.URLStabilityScore,
		string(p.BestMethod), p.ConfidenceThreshold, p.ImageConsistent, statsJSON, p.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert pattern %s", p.Retailer)
}

func (s *PostgresStore) ListPatterns(ctx context.Context) ([]model.RetailerPattern, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+patternColumns+` FROM retailer_patterns ORDER BY retailer`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list patterns")
	}
	defer rows.Close()

	var patterns []model.RetailerPattern
	for rows.Next() {
		var p model.RetailerPattern
		var statsJSON []byte
		if err := rows.Scan(&p.Retailer, &p.SampleSize, &p.URLChangesDetected, &p.URLStabilityScore,
			&p.BestMethod, &p.ConfidenceThreshold, &p.ImageConsistent, &statsJSON, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pattern")
		}
		if err := json.Unmarshal(statsJSON, &p.MethodStats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal method stats")
		}
		patterns = append(patterns, p)
	}
	return patterns, eris.Wrap(rows.Err(), "postgres: patterns iterate")
}

// Assessment queue

// EnqueueItem inserts a queue item, returning the new id. At most one
// pending item may exist per (retailer, product_url, review_type); replays
// return the existing item's id instead of inserting a duplicate.
func (s *PostgresStore) EnqueueItem(ctx context.Context, item *model.QueueItem) (int64, error) {
	payloadJSON, err := json.Marshal(item.Payload)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: marshal queue payload")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.Status = model.QueueStatusPending

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO assessment_queue (retailer, product_url, payload, review_type, priority, status, suspected_match_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)
		 ON CONFLICT (retailer, product_url, review_type) WHERE status = 'pending' DO NOTHING
		 RETURNING id`,
		item.Retailer, item.ProductURL, payloadJSON, string(item.ReviewType), string(item.Priority),
		item.SuspectedMatchID, item.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the conflict: a pending item already exists.
			err = s.pool.QueryRow(ctx,
				`SELECT id FROM assessment_queue WHERE retailer = $1 AND product_url = $2 AND review_type = $3 AND status = 'pending'`,
				item.Retailer, item.ProductURL, string(item.ReviewType),
			).Scan(&id)
			if err != nil {
				return 0, eris.Wrap(err, "postgres: lookup pending queue item")
			}
			item.ID = id
			return id, nil
		}
		return 0, eris.Wrap(err, "postgres: enqueue item")
	}
	item.ID = id
	return id, nil
}

func (s *PostgresStore) GetQueueItem(ctx context.Context, id int64) (*model.QueueItem, error) {
	item, err := scanQueueItemRow(s.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM assessment_queue WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get queue item %d", id)
	}
	return item, nil
}

func (s *PostgresStore) ListQueueItems(ctx context.Context, f QueueFilter) ([]model.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM assessment_queue WHERE true`
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	if f.ReviewType != "" {
		query += fmt.Sprintf(` AND review_type = $%d`, argIdx)
		args = append(args, string(f.ReviewType))
		argIdx++
	}
	if f.Priority != "" {
		query += fmt.Sprintf(` AND priority = $%d`, argIdx)
		args = append(args, string(f.Priority))
		argIdx++
	}
	if f.Retailer != "" {
		query += fmt.Sprintf(` AND retailer = $%d`, argIdx)
		args = append(args, f.Retailer)
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, id LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++
	if f.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list queue items")
	}
	defer rows.Close()

	var items []model.QueueItem
	for rows.Next() {
		item, err := scanQueueItemRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan queue item")
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: queue items iterate")
}

// MarkItemReviewed flips the item to reviewed and inserts any promotion
// follow-ups in the same transaction. The status guard makes the flip
// happen exactly once.
func (s *PostgresStore) MarkItemReviewed(ctx context.Context, item *model.QueueItem, followUps []model.QueueItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin review tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE assessment_queue SET status = 'reviewed', decision = $1, reviewed_at = $2 WHERE id = $3 AND status = 'pending'`,
		string(item.Decision), item.ReviewedAt, item.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark reviewed %d", item.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("queue item %d not pending", item.ID)
	}

	for i := range followUps {
		fu := &followUps[i]
		payloadJSON, err := json.Marshal(fu.Payload)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal follow-up payload")
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO assessment_queue (retailer, product_url, payload, review_type, priority, status, suspected_match_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)
			 RETURNING id`,
			fu.Retailer, fu.ProductURL, payloadJSON, string(fu.ReviewType), string(fu.Priority),
			fu.SuspectedMatchID, fu.CreatedAt,
		).Scan(&fu.ID)
		if err != nil {
			return eris.Wrap(err, "postgres: insert follow-up")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit review tx")
}

func scanQueueItemRow(row pgx.Row) (*model.QueueItem, error) {
	var item model.QueueItem
	var payloadJSON []byte
	err := row.Scan(&item.ID, &item.Retailer, &item.ProductURL, &payloadJSON, &item.ReviewType,
		&item.Priority, &item.Status, &item.Decision, &item.SuspectedMatchID, &item.CreatedAt, &item.ReviewedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payloadJSON, &item.Payload); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal queue payload")
	}
	return &item, nil
}

// Status counters

func (s *PostgresStore) CountProductsByStage(ctx context.Context) (map[model.LifecycleStage]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT lifecycle_stage, count(*) FROM products GROUP BY lifecycle_stage`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count products by stage")
	}
	defer rows.Close()

	counts := make(map[model.LifecycleStage]int64)
	for rows.Next() {
		var stage model.LifecycleStage
		var n int64
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage count")
		}
		counts[stage] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: stage counts iterate")
}

func (s *PostgresStore) CountQueueItems(ctx context.Context, f QueueFilter) (int64, error) {
	query := `SELECT count(*) FROM assessment_queue WHERE true`
	args := []any{}
	argIdx := 1
	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	if f.ReviewType != "" {
		query += fmt.Sprintf(` AND review_type = $%d`, argIdx)
		args = append(args, string(f.ReviewType))
		argIdx++
	}
	if f.Priority != "" {
		query += fmt.Sprintf(` AND priority = $%d`, argIdx)
		args = append(args, string(f.Priority))
		argIdx++
	}
	if f.Retailer != "" {
		query += fmt.Sprintf(` AND retailer = $%d`, argIdx)
		args = append(args, f.Retailer)
	}

	var n int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&n)
	return n, eris.Wrap(err, "postgres: count queue items")
}

func (s *PostgresStore) CountPriceEvents(ctx context.Context, onlyUnprocessed bool) (int64, error) {
	query := `SELECT count(*) FROM price_change_events`
	if onlyUnprocessed {
		query += ` WHERE processed = false`
	}
	var n int64
	err := s.pool.QueryRow(ctx, query).Scan(&n)
	return n, eris.Wrap(err, "postgres: count price events")
}

// Price change events

func (s *PostgresStore) InsertPriceEvent(ctx context.Context, ev *model.PriceChangeEvent) error {
	if ev.DetectedAt.IsZero() {
		ev.DetectedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO price_change_events (product_id, retailer, old_price, new_price, delta, priority, detected_at, processed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false)
		 RETURNING id`,
		ev.ProductID, ev.Retailer, ev.OldPrice, ev.NewPrice, ev.Delta, string(ev.Priority), ev.DetectedAt,
	).Scan(&ev.ID)
	return eris.Wrap(err, "postgres: insert price event")
}

func (s *PostgresStore) ListPriceEvents(ctx context.Context, onlyUnprocessed bool, limit int) ([]model.PriceChangeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, product_id, retailer, old_price, new_price, delta, priority, detected_at, processed
	          FROM price_change_events WHERE true`
	if onlyUnprocessed {
		query += ` AND processed = false`
	}
	query += ` ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, detected_at LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list price events")
	}
	defer rows.Close()

	var events []model.PriceChangeEvent
	for rows.Next() {
		var ev model.PriceChangeEvent
		if err := rows.Scan(&ev.ID, &ev.ProductID, &ev.Retailer, &ev.OldPrice, &ev.NewPrice,
			&ev.Delta, &ev.Priority, &ev.DetectedAt, &ev.Processed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price event")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: price events iterate")
}

func (s *PostgresStore) MarkPriceEventProcessed(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE price_change_events SET processed = true WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark price event processed %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("price event not found: %d", id)
	}
	return nil
}
