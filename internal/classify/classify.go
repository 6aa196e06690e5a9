// Package classify maps match confidence scores to classifications. The
// mapping is total: every value in [0,1] lands in exactly one class, and the
// absence of any match signal (confidence 0) classifies as new.
package classify

import (
	"github.com/yavzali/catalogwatch/internal/model"
)

// Config holds the classification thresholds.
type Config struct {
	// UpperThreshold: confidence strictly above auto-links to the existing
	// product with no human review.
	UpperThreshold float64 `yaml:"upper_threshold" mapstructure:"upper_threshold"`
	// LowerThreshold: confidence below routes to the new-product path;
	// the band [lower, upper] is a suspected duplicate.
	LowerThreshold float64 `yaml:"lower_threshold" mapstructure:"lower_threshold"`
	// BootstrapMinSamples is the retailer sample size below which learned
	// thresholds are ignored in favor of the fixed defaults.
	BootstrapMinSamples int `yaml:"bootstrap_min_samples" mapstructure:"bootstrap_min_samples"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		UpperThreshold:      0.85,
		LowerThreshold:      0.70,
		BootstrapMinSamples: 10,
	}
}

// Learned upper thresholds outside this range are ignored as implausible.
const (
	learnedUpperMin = 0.75
	learnedUpperMax = 0.95
)

// Classify maps a confidence score to a classification.
//
// Retailers past the bootstrap sample size may tighten or loosen the upper
// threshold through their learned confidence_threshold; cold retailers
// always get the conservative fixed defaults so a handful of early matches
// cannot specialize the classifier prematurely.
func Classify(confidence float64, pat *model.RetailerPattern, cfg Config) model.Classification {
	upper := cfg.UpperThreshold
	if pat != nil && pat.SampleSize >= cfg.BootstrapMinSamples &&
		pat.ConfidenceThreshold >= learnedUpperMin && pat.ConfidenceThreshold <= learnedUpperMax {
		upper = pat.ConfidenceThreshold
	}
	if upper <= cfg.LowerThreshold {
		upper = cfg.UpperThreshold
	}

	switch {
	case confidence > upper:
		return model.ClassExisting
	case confidence >= cfg.LowerThreshold:
		return model.ClassSuspectedDuplicate
	default:
		return model.ClassNew
	}
}
