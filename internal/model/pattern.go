package model

import (
	"time"
)

// MethodStat accumulates per-method success statistics for one retailer.
type MethodStat struct {
	Count         int     `json:"count"`
	ConfidenceSum float64 `json:"confidence_sum"`
}

// Mean returns the running average confidence for the method.
func (s MethodStat) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.ConfidenceSum / float64(s.Count)
}

// RetailerPattern holds the learned matching statistics for one retailer.
// One row per retailer, continuously upserted; last writer wins.
type RetailerPattern struct {
	Retailer            string                     `json:"retailer" db:"retailer"`
	SampleSize          int                        `json:"sample_size" db:"sample_size"`
	URLChangesDetected  int                        `json:"url_changes_detected" db:"url_changes_detected"`
	URLStabilityScore   float64                    `json:"url_stability_score" db:"url_stability_score"`
	BestMethod          MatchMethod                `json:"best_method" db:"best_method"`
	ConfidenceThreshold float64                    `json:"confidence_threshold" db:"confidence_threshold"`
	ImageConsistent     bool                       `json:"image_consistent" db:"image_consistent"`
	MethodStats         map[MatchMethod]MethodStat `json:"method_stats" db:"method_stats"`
	UpdatedAt           time.Time                  `json:"updated_at" db:"updated_at"`
}

// DefaultPattern is the conservative pattern used for retailers with no
// learning history: URLs assumed stable, URL matching preferred.
func DefaultPattern(retailer string) *RetailerPattern {
	return &RetailerPattern{
		Retailer:            retailer,
		SampleSize:          0,
		URLChangesDetected:  0,
		URLStabilityScore:   1.0,
		BestMethod:          MethodExactURL,
		ConfidenceThreshold: 0,
		MethodStats:         map[MatchMethod]MethodStat{},
	}
}
