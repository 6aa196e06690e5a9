package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/yavzali/catalogwatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs
// single-operator installs where running Postgres is overkill.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id           TEXT PRIMARY KEY,
	retailer     TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	stats        TEXT,
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS catalog_entries (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id             TEXT NOT NULL REFERENCES scan_runs(id),
	retailer           TEXT NOT NULL,
	category           TEXT NOT NULL DEFAULT '',
	catalog_url        TEXT NOT NULL,
	title              TEXT NOT NULL DEFAULT '',
	price              REAL NOT NULL DEFAULT 0,
	product_code       TEXT NOT NULL DEFAULT '',
	image_urls         TEXT NOT NULL DEFAULT '[]',
	scan_kind          TEXT NOT NULL,
	discovered_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	match_method       TEXT NOT NULL DEFAULT '',
	match_confidence   REAL,
	classification     TEXT NOT NULL DEFAULT '',
	matched_product_id INTEGER,
	UNIQUE (run_id, catalog_url)
);

CREATE INDEX IF NOT EXISTS idx_catalog_entries_run ON catalog_entries(run_id);

CREATE TABLE IF NOT EXISTS products (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	retailer          TEXT NOT NULL,
	url               TEXT NOT NULL,
	normalized_url    TEXT NOT NULL,
	title             TEXT NOT NULL DEFAULT '',
	price             REAL NOT NULL DEFAULT 0,
	product_code      TEXT NOT NULL DEFAULT '',
	image_urls        TEXT NOT NULL DEFAULT '[]',
	lifecycle_stage   TEXT NOT NULL DEFAULT 'discovered',
	data_completeness TEXT NOT NULL DEFAULT 'partial',
	assessed_at       DATETIME,
	external_ref      TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (retailer, url)
);

CREATE INDEX IF NOT EXISTS idx_products_norm_url ON products(retailer, normalized_url);
CREATE INDEX IF NOT EXISTS idx_products_code ON products(retailer, product_code);
CREATE INDEX IF NOT EXISTS idx_products_price ON products(retailer, price);

CREATE TABLE IF NOT EXISTS retailer_patterns (
	retailer             TEXT PRIMARY KEY,
	sample_size          INTEGER NOT NULL DEFAULT 0,
	url_changes_detected INTEGER NOT NULL DEFAULT 0,
	url_stability_score  REAL NOT NULL DEFAULT 1.0,
	best_method          TEXT NOT NULL DEFAULT 'exact_url',
	confidence_threshold REAL NOT NULL DEFAULT 0,
	image_consistent     INTEGER NOT NULL DEFAULT 0,
	method_stats         TEXT NOT NULL DEFAULT '{}',
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS assessment_queue (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	retailer           TEXT NOT NULL,
	product_url        TEXT NOT NULL,
	payload            TEXT NOT NULL,
	review_type        TEXT NOT NULL,
	priority           TEXT NOT NULL DEFAULT 'normal',
	status             TEXT NOT NULL DEFAULT 'pending',
	decision           TEXT NOT NULL DEFAULT '',
	suspected_match_id INTEGER,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	reviewed_at        DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_pending_unique
	ON assessment_queue(retailer, product_url, review_type) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_queue_status ON assessment_queue(status, priority);

CREATE TABLE IF NOT EXISTS price_change_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id  INTEGER NOT NULL REFERENCES products(id),
	retailer    TEXT NOT NULL,
	old_price   REAL NOT NULL,
	new_price   REAL NOT NULL,
	delta       REAL NOT NULL,
	priority    TEXT NOT NULL DEFAULT 'normal',
	detected_at DATETIME NOT NULL DEFAULT (datetime('now')),
	processed   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_price_events_processed ON price_change_events(processed, detected_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Scan runs

func (s *SQLiteStore) CreateScanRun(ctx context.Context, run *model.ScanRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = model.ScanRunStatusRunning

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_runs (id, retailer, category, kind, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Retailer, run.Category, string(run.Kind), string(run.Status), run.StartedAt,
	)
	return eris.Wrap(err, "sqlite: insert scan run")
}

func (s *SQLiteStore) CompleteScanRun(ctx context.Context, id string, stats *model.ScanStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal scan stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE scan_runs SET status = 'completed', stats = ?, completed_at = ? WHERE id = ?`,
		string(statsJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete scan run %s", id)
	}
	return checkRowsAffected(res, "scan run", id)
}

func (s *SQLiteStore) FailScanRun(ctx context.Context, id string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scan_runs SET status = 'failed', error = ?, completed_at = ? WHERE id = ?`,
		errMsg, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: fail scan run %s", id)
}

func (s *SQLiteStore) GetScanRun(ctx context.Context, id string) (*model.ScanRun, error) {
	var r model.ScanRun
	var statsJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, retailer, category, kind, status, stats, error, started_at, completed_at FROM scan_runs WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.Retailer, &r.Category, &r.Kind, &r.Status, &statsJSON, &r.Error, &r.StartedAt, &r.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get scan run %s", id)
	}
	if statsJSON.Valid {
		r.Stats = &model.ScanStats{}
		if err := json.Unmarshal([]byte(statsJSON.String), r.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal scan stats")
		}
	}
	return &r, nil
}

// Snapshot log

func (s *SQLiteStore) InsertEntries(ctx context.Context, entries []model.CatalogEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert entries")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO catalog_entries
		 (run_id, retailer, category, catalog_url, title, price, product_code, image_urls, scan_kind, discovered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert entries")
	}
	defer stmt.Close()

	var total int64
	for _, e := range entries {
		imagesJSON, err := json.Marshal(e.ImageURLs)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal image urls")
		}
		discovered := e.DiscoveredAt
		if discovered.IsZero() {
			discovered = time.Now().UTC()
		}
		res, err := stmt.ExecContext(ctx, e.RunID, e.Retailer, e.Category, e.CatalogURL, e.Title, e.Price,
			e.ProductCode, string(imagesJSON), string(e.ScanKind), discovered)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: insert entry")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		total += n
	}

	return total, eris.Wrap(tx.Commit(), "sqlite: commit insert entries")
}

func (s *SQLiteStore) UpdateEntryMatch(ctx context.Context, runID, catalogURL string, method model.MatchMethod, confidence float64, class model.Classification, productID *int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE catalog_entries SET match_method = ?, match_confidence = ?, classification = ?, matched_product_id = ?
		 WHERE run_id = ? AND catalog_url = ?`,
		string(method), confidence, string(class), productID, runID, catalogURL,
	)
	return eris.Wrap(err, "sqlite: update entry match")
}

func (s *SQLiteStore) ListEntries(ctx context.Context, runID string) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, retailer, category, catalog_url, title, price, product_code, image_urls,
		        scan_kind, discovered_at, match_method, match_confidence, classification, matched_product_id
		 FROM catalog_entries WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entries")
	}
	defer rows.Close()

	var entries []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		var imagesJSON string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Retailer, &e.Category, &e.CatalogURL, &e.Title, &e.Price,
			&e.ProductCode, &imagesJSON, &e.ScanKind, &e.DiscoveredAt,
			&e.MatchMethod, &e.MatchConfidence, &e.Classification, &e.MatchedProductID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entry")
		}
		if err := json.Unmarshal([]byte(imagesJSON), &e.ImageURLs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal entry images")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list entries iterate")
}

// Products

const sqliteProductColumns = `id, retailer, url, normalized_url, title, price, product_code, image_urls, lifecycle_stage, data_completeness, assessed_at, external_ref, created_at, updated_at`

func (s *SQLiteStore) CreateProduct(ctx context.Context, p *model.Product) error {
	imagesJSON, err := json.Marshal(p.ImageURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal product images")
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (retailer, url, normalized_url, title, price, product_code, image_urls,
		                       lifecycle_stage, data_completeness, assessed_at, external_ref, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Retailer, p.URL, p.NormalizedURL, p.Title, p.Price, p.ProductCode, string(imagesJSON),
		string(p.LifecycleStage), string(p.DataCompleteness), p.AssessedAt, p.ExternalRef, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert product")
	}
	p.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: product id")
}

func (s *SQLiteStore) ProductByURL(ctx context.Context, retailer, url string) (*model.Product, error) {
	return s.productBy(ctx, `SELECT `+sqliteProductColumns+` FROM products WHERE retailer = ? AND url = ?`, retailer, url)
}

func (s *SQLiteStore) ProductByNormalizedURL(ctx context.Context, retailer, normalizedURL string) (*model.Product, error) {
	return s.productBy(ctx, `SELECT `+sqliteProductColumns+` FROM products WHERE retailer = ? AND normalized_url = ?`, retailer, normalizedURL)
}

func (s *SQLiteStore) ProductByCode(ctx context.Context, retailer, code string) (*model.Product, error) {
	return s.productBy(ctx, `SELECT `+sqliteProductColumns+` FROM products WHERE retailer = ? AND product_code = ?`, retailer, code)
}

func (s *SQLiteStore) productBy(ctx context.Context, query string, args ...any) (*model.Product, error) {
	p, err := scanSQLiteProduct(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get product")
	}
	return p, nil
}

func (s *SQLiteStore) ProductsByPriceBand(ctx context.Context, retailer string, low, high float64) ([]model.Product, error) {
	query := `SELECT ` + sqliteProductColumns + ` FROM products WHERE retailer = ?`
	args := []any{retailer}
	if low > 0 || high > 0 {
		query += ` AND price BETWEEN ? AND ?`
		args = append(args, low, high)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: products by price band")
	}
	defer rows.Close()
	return scanSQLiteProducts(rows)
}

func (s *SQLiteStore) ListProducts(ctx context.Context, retailer string, limit, offset int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + sqliteProductColumns + ` FROM products WHERE 1=1`
	var args []any
	if retailer != "" {
		query += ` AND retailer = ?`
		args = append(args, retailer)
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()
	return scanSQLiteProducts(rows)
}

func (s *SQLiteStore) UpdateProductPrice(ctx context.Context, id int64, price float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET price = ?, updated_at = ? WHERE id = ?`,
		price, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update product price %d", id)
	}
	return checkRowsAffectedID(res, "product", id)
}

func (s *SQLiteStore) UpdateProductLifecycle(ctx context.Context, p *model.Product) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET lifecycle_stage = ?, assessed_at = ?, updated_at = ? WHERE id = ?`,
		string(p.LifecycleStage), p.AssessedAt, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update product lifecycle %d", p.ID)
	}
	return checkRowsAffectedID(res, "product", p.ID)
}

func (s *SQLiteStore) UpdateProductCompleteness(ctx context.Context, id int64, c model.Completeness) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET data_completeness = ?, updated_at = ? WHERE id = ?`,
		string(c), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update product completeness %d", id)
	}
	return checkRowsAffectedID(res, "product", id)
}

func scanSQLiteProduct(row scannable) (*model.Product, error) {
	var p model.Product
	var imagesJSON string
	err := row.Scan(&p.ID, &p.Retailer, &p.URL, &p.NormalizedURL, &p.Title, &p.Price, &p.ProductCode,
		&imagesJSON, &p.LifecycleStage, &p.DataCompleteness, &p.AssessedAt, &p.ExternalRef, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(imagesJSON), &p.ImageURLs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal product images")
	}
	return &p, nil
}

func scanSQLiteProducts(rows *sql.Rows) ([]model.Product, error) {
	var products []model.Product
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: products iterate")
}

// Retailer patterns

func (s *SQLiteStore) GetPattern(ctx context.Context, retailer string) (*model.RetailerPattern, error) {
	var p model.RetailerPattern
	var statsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT retailer, sample_size, url_changes_detected, url_stability_score, best_method,
		        confidence_threshold, image_consistent, method_stats, updated_at
		 FROM retailer_patterns WHERE retailer = ?`,
		retailer,
	).Scan(&p.Retailer, &p.SampleSize, &p.URLChangesDetected, &p.URLStabilityScore,
		&p.BestMethod, &p.ConfidenceThreshold, &p.ImageConsistent, &statsJSON, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get pattern %s", retailer)
	}
	if err := json.Unmarshal([]byte(statsJSON), &p.MethodStats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal method stats")
	}
	return &p, nil
}

func (s *SQLiteStore) UpsertPattern(ctx context.Context, p *model.RetailerPattern) error {
	statsJSON, err := json.Marshal(p.MethodStats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal method stats")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO retailer_patterns (retailer, sample_size, url_changes_detected, url_stability_score,
		                                best_method, confidence_threshold, image_consistent, method_stats, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (retailer) DO UPDATE SET
		   sample_size = excluded.sample_size,
		   url_changes_detected = excluded.url_changes_detected,
		   url_stability_score = excluded.url_stability_score,
		   best_method = excluded.best_method,
		   confidence_threshold = excluded.confidence_threshold,
		   image_consistent = excluded.image_consistent,
		   method_stats = excluded.method_stats,
		   updated_at = excluded.updated_at`,
		p.Retailer, p.SampleSize, p.URLChangesDetected, p.URLStabilityScore,
		string(p.BestMethod), p.ConfidenceThreshold, p.ImageConsistent, string(statsJSON), p.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert pattern %s", p.Retailer)
}

func (s *SQLiteStore) ListPatterns(ctx context.Context) ([]model.RetailerPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT retailer, sample_size, url_changes_detected, url_stability_score, best_method,
		        confidence_threshold, image_consistent, method_stats, updated_at
		 FROM retailer_patterns ORDER BY retailer`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list patterns")
	}
	defer rows.Close()

	var patterns []model.RetailerPattern
	for rows.Next() {
		var p model.RetailerPattern
		var statsJSON string
		if err := rows.Scan(&p.Retailer, &p.SampleSize, &p.URLChangesDetected, &p.URLStabilityScore,
			&p.BestMethod, &p.ConfidenceThreshold, &p.ImageConsistent, &statsJSON, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pattern")
		}
		if err := json.Unmarshal([]byte(statsJSON), &p.MethodStats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal method stats")
		}
		patterns = append(patterns, p)
	}
	return patterns, eris.Wrap(rows.Err(), "sqlite: patterns iterate")
}

// Assessment queue

const sqliteQueueColumns = `id, retailer, product_url, payload, review_type, priority, status, decision, suspected_match_id, created_at, reviewed_at`

func (s *SQLiteStore) EnqueueItem(ctx context.Context, item *model.QueueItem) (int64, error) {
	payloadJSON, err := json.Marshal(item.Payload)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal queue payload")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.Status = model.QueueStatusPending

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assessment_queue (retailer, product_url, payload, review_type, priority, status, suspected_match_id, created_at)
		 VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)
		 ON CONFLICT (retailer, product_url, review_type) WHERE status = 'pending' DO NOTHING`,
		item.Retailer, item.ProductURL, string(payloadJSON), string(item.ReviewType), string(item.Priority),
		item.SuspectedMatchID, item.CreatedAt,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: enqueue item")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// A pending item already exists for this product and review type.
		var id int64
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM assessment_queue WHERE retailer = ? AND product_url = ? AND review_type = ? AND status = 'pending'`,
			item.Retailer, item.ProductURL, string(item.ReviewType),
		).Scan(&id)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: lookup pending queue item")
		}
		item.ID = id
		return id, nil
	}
	item.ID, err = res.LastInsertId()
	return item.ID, eris.Wrap(err, "sqlite: queue item id")
}

func (s *SQLiteStore) GetQueueItem(ctx context.Context, id int64) (*model.QueueItem, error) {
	item, err := scanSQLiteQueueItem(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteQueueColumns+` FROM assessment_queue WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get queue item %d", id)
	}
	return item, nil
}

func (s *SQLiteStore) ListQueueItems(ctx context.Context, f QueueFilter) ([]model.QueueItem, error) {
	query := `SELECT ` + sqliteQueueColumns + ` FROM assessment_queue WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.ReviewType != "" {
		query += ` AND review_type = ?`
		args = append(args, string(f.ReviewType))
	}
	if f.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(f.Priority))
	}
	if f.Retailer != "" {
		query += ` AND retailer = ?`
		args = append(args, f.Retailer)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, id LIMIT ?`
	args = append(args, limit)
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list queue items")
	}
	defer rows.Close()

	var items []model.QueueItem
	for rows.Next() {
		item, err := scanSQLiteQueueItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan queue item")
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: queue items iterate")
}

func (s *SQLiteStore) MarkItemReviewed(ctx context.Context, item *model.QueueItem, followUps []model.QueueItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin review tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE assessment_queue SET status = 'reviewed', decision = ?, reviewed_at = ? WHERE id = ? AND status = 'pending'`,
		string(item.Decision), item.ReviewedAt, item.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark reviewed %d", item.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("queue item %d not pending", item.ID)
	}

	for i := range followUps {
		fu := &followUps[i]
		payloadJSON, err := json.Marshal(fu.Payload)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal follow-up payload")
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO assessment_queue (retailer, product_url, payload, review_type, priority, status, suspected_match_id, created_at)
			 VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`,
			fu.Retailer, fu.ProductURL, string(payloadJSON), string(fu.ReviewType), string(fu.Priority),
			fu.SuspectedMatchID, fu.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert follow-up")
		}
		if fu.ID, err = res.LastInsertId(); err != nil {
			return eris.Wrap(err, "sqlite: follow-up id")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit review tx")
}

func scanSQLiteQueueItem(row scannable) (*model.QueueItem, error) {
	var item model.QueueItem
	var payloadJSON string
	err := row.Scan(&item.ID, &item.Retailer, &item.ProductURL, &payloadJSON, &item.ReviewType,
		&item.Priority, &item.Status, &item.Decision, &item.SuspectedMatchID, &item.CreatedAt, &item.ReviewedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payloadJSON), &item.Payload); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal queue payload")
	}
	return &item, nil
}

// Status counters

func (s *SQLiteStore) CountProductsByStage(ctx context.Context) (map[model.LifecycleStage]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT lifecycle_stage, count(*) FROM products GROUP BY lifecycle_stage`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count products by stage")
	}
	defer rows.Close()

	counts := make(map[model.LifecycleStage]int64)
	for rows.Next() {
		var stage model.LifecycleStage
		var n int64
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage count")
		}
		counts[stage] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: stage counts iterate")
}

func (s *SQLiteStore) CountQueueItems(ctx context.Context, f QueueFilter) (int64, error) {
	query := `SELECT count(*) FROM assessment_queue WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.ReviewType != "" {
		query += ` AND review_type = ?`
		args = append(args, string(f.ReviewType))
	}
	if f.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(f.Priority))
	}
	if f.Retailer != "" {
		query += ` AND retailer = ?`
		args = append(args, f.Retailer)
	}

	var n int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count queue items")
}

func (s *SQLiteStore) CountPriceEvents(ctx context.Context, onlyUnprocessed bool) (int64, error) {
	query := `SELECT count(*) FROM price_change_events`
	if onlyUnprocessed {
		query += ` WHERE processed = 0`
	}
	var n int64
	err := s.db.QueryRowContext(ctx, query).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count price events")
}

// Price change events

func (s *SQLiteStore) InsertPriceEvent(ctx context.Context, ev *model.PriceChangeEvent) error {
	if ev.DetectedAt.IsZero() {
		ev.DetectedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO price_change_events (product_id, retailer, old_price, new_price, delta, priority, detected_at, processed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		ev.ProductID, ev.Retailer, ev.OldPrice, ev.NewPrice, ev.Delta, string(ev.Priority), ev.DetectedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert price event")
	}
	ev.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: price event id")
}

func (s *SQLiteStore) ListPriceEvents(ctx context.Context, onlyUnprocessed bool, limit int) ([]model.PriceChangeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, product_id, retailer, old_price, new_price, delta, priority, detected_at, processed
	          FROM price_change_events WHERE 1=1`
	if onlyUnprocessed {
		query += ` AND processed = 0`
	}
	query += ` ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, detected_at LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list price events")
	}
	defer rows.Close()

	var events []model.PriceChangeEvent
	for rows.Next() {
		var ev model.PriceChangeEvent
		if err := rows.Scan(&ev.ID, &ev.ProductID, &ev.Retailer, &ev.OldPrice, &ev.NewPrice,
			&ev.Delta, &ev.Priority, &ev.DetectedAt, &ev.Processed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price event")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: price events iterate")
}

func (s *SQLiteStore) MarkPriceEventProcessed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE price_change_events SET processed = 1 WHERE id = ?`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark price event processed %d", id)
	}
	return checkRowsAffectedID(res, "price event", id)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func checkRowsAffectedID(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}
