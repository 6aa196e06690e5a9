package model

import (
	"time"
)

// LifecycleStage is the discrete state of a product's review journey.
type LifecycleStage string

const (
	StageDiscovered        LifecycleStage = "discovered"
	StagePendingAssessment LifecycleStage = "pending_assessment"
	StageAssessedApproved  LifecycleStage = "assessed_approved"
	StageAssessedRejected  LifecycleStage = "assessed_rejected"
	StageImportedDirect    LifecycleStage = "imported_direct"
)

// Terminal reports whether the stage ends the discovery workflow.
// Price change events act on terminal products without altering the stage.
func (s LifecycleStage) Terminal() bool {
	switch s {
	case StageAssessedApproved, StageAssessedRejected, StageImportedDirect:
		return true
	}
	return false
}

// Completeness tracks how much of a product's data has been captured.
// It moves independently of the lifecycle stage.
type Completeness string

const (
	CompletenessPartial  Completeness = "partial"
	CompletenessFull     Completeness = "full"
	CompletenessEnriched Completeness = "enriched"
)

// Product is a canonical tracked item, unique by (retailer, url).
// Created once, never deleted; mutated only by lifecycle transitions,
// enrichment and the price change detector.
type Product struct {
	ID               int64          `json:"id" db:"id"`
	Retailer         string         `json:"retailer" db:"retailer"`
	URL              string         `json:"url" db:"url"`
	NormalizedURL    string         `json:"normalized_url" db:"normalized_url"`
	Title            string         `json:"title" db:"title"`
	Price            float64        `json:"price" db:"price"`
	ProductCode      string         `json:"product_code,omitempty" db:"product_code"`
	ImageURLs        []string       `json:"image_urls,omitempty" db:"image_urls"`
	LifecycleStage   LifecycleStage `json:"lifecycle_stage" db:"lifecycle_stage"`
	DataCompleteness Completeness   `json:"data_completeness" db:"data_completeness"`
	AssessedAt       *time.Time     `json:"assessed_at,omitempty" db:"assessed_at"`
	ExternalRef      string         `json:"external_ref,omitempty" db:"external_ref"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// PriceChangeEvent is emitted when a confirmed match diverges in price.
// Consumed and marked processed by the external price-update pipeline.
type PriceChangeEvent struct {
	ID         int64     `json:"id" db:"id"`
	ProductID  int64     `json:"product_id" db:"product_id"`
	Retailer   string    `json:"retailer" db:"retailer"`
	OldPrice   float64   `json:"old_price" db:"old_price"`
	NewPrice   float64   `json:"new_price" db:"new_price"`
	Delta      float64   `json:"delta" db:"delta"`
	Priority   Priority  `json:"priority" db:"priority"`
	DetectedAt time.Time `json:"detected_at" db:"detected_at"`
	Processed  bool      `json:"processed" db:"processed"`
}
