package model

import (
	"time"
)

// ScanKind distinguishes the first full snapshot of a retailer/category from
// subsequent monitoring passes.
type ScanKind string

const (
	ScanKindBaseline ScanKind = "baseline"
	ScanKindMonitor  ScanKind = "monitor"
)

// Classification is the matcher verdict for one catalog entry.
type Classification string

const (
	ClassExisting           Classification = "existing"
	ClassSuspectedDuplicate Classification = "suspected_duplicate"
	ClassNew                Classification = "new"
)

// CatalogEntry is one observed listing from a retailer catalog scan.
// Entries are append-only: after insertion only the match audit columns
// (method, confidence, classification, matched product) are ever written.
type CatalogEntry struct {
	ID           int64     `json:"id" db:"id"`
	RunID        string    `json:"run_id" db:"run_id"`
	Retailer     string    `json:"retailer" db:"retailer"`
	Category     string    `json:"category" db:"category"`
	CatalogURL   string    `json:"catalog_url" db:"catalog_url"`
	Title        string    `json:"title" db:"title"`
	Price        float64   `json:"price" db:"price"`
	ProductCode  string    `json:"product_code,omitempty" db:"product_code"`
	ImageURLs    []string  `json:"image_urls,omitempty" db:"image_urls"`
	ScanKind     ScanKind  `json:"scan_kind" db:"scan_kind"`
	DiscoveredAt time.Time `json:"discovered_at" db:"discovered_at"`

	// Match audit, populated after classification.
	MatchMethod      MatchMethod    `json:"match_method,omitempty" db:"match_method"`
	MatchConfidence  *float64       `json:"match_confidence,omitempty" db:"match_confidence"`
	Classification   Classification `json:"classification,omitempty" db:"classification"`
	MatchedProductID *int64         `json:"matched_product_id,omitempty" db:"matched_product_id"`
}

// ScanRunStatus tracks a scan run's lifecycle.
type ScanRunStatus string

const (
	ScanRunStatusRunning   ScanRunStatus = "running"
	ScanRunStatusCompleted ScanRunStatus = "completed"
	ScanRunStatusFailed    ScanRunStatus = "failed"
)

// ScanRun records one change-detection pass over a retailer/category.
type ScanRun struct {
	ID          string        `json:"id" db:"id"`
	Retailer    string        `json:"retailer" db:"retailer"`
	Category    string        `json:"category" db:"category"`
	Kind        ScanKind      `json:"kind" db:"kind"`
	Status      ScanRunStatus `json:"status" db:"status"`
	Stats       *ScanStats    `json:"stats,omitempty" db:"stats"`
	Error       string        `json:"error,omitempty" db:"error"`
	StartedAt   time.Time     `json:"started_at" db:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// ScanStats summarizes the outcome of a scan run.
type ScanStats struct {
	Entries             int `json:"entries"`
	Existing            int `json:"existing"`
	SuspectedDuplicates int `json:"suspected_duplicates"`
	New                 int `json:"new"`
	PriceChanges        int `json:"price_changes"`
	Skipped             int `json:"skipped"`
}
