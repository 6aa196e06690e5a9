package model

import (
	"time"
)

// ReviewType distinguishes the two kinds of human assessment.
type ReviewType string

const (
	ReviewModesty     ReviewType = "modesty"
	ReviewDuplication ReviewType = "duplication"
)

// Priority orders work in the assessment queue and price pipeline.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// QueueStatus is the two-state status of an assessment queue item.
type QueueStatus string

const (
	QueueStatusPending  QueueStatus = "pending"
	QueueStatusReviewed QueueStatus = "reviewed"
)

// Decision is a reviewer verdict. Valid values depend on the review type.
type Decision string

const (
	DecisionModest           Decision = "modest"
	DecisionModeratelyModest Decision = "moderately_modest"
	DecisionNotModest        Decision = "not_modest"
	DecisionDuplicate        Decision = "duplicate"
	DecisionNotDuplicate     Decision = "not_duplicate"
)

// ProductPayload is the product snapshot carried by a queue item. It is
// copied verbatim into any follow-up item created on promotion.
type ProductPayload struct {
	Title       string   `json:"title"`
	Price       float64  `json:"price"`
	ProductCode string   `json:"product_code,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	CatalogURL  string   `json:"catalog_url"`
	Category    string   `json:"category,omitempty"`
}

// QueueItem is one unit of human-review work. Status flips from pending to
// reviewed exactly once; items are never physically deleted.
type QueueItem struct {
	ID               int64          `json:"id" db:"id"`
	Retailer         string         `json:"retailer" db:"retailer"`
	ProductURL       string         `json:"product_url" db:"product_url"`
	Payload          ProductPayload `json:"payload" db:"payload"`
	ReviewType       ReviewType     `json:"review_type" db:"review_type"`
	Priority         Priority       `json:"priority" db:"priority"`
	Status           QueueStatus    `json:"status" db:"status"`
	Decision         Decision       `json:"decision,omitempty" db:"decision"`
	SuspectedMatchID *int64         `json:"suspected_match_id,omitempty" db:"suspected_match_id"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	ReviewedAt       *time.Time     `json:"reviewed_at,omitempty" db:"reviewed_at"`
}
