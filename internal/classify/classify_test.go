package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yavzali/catalogwatch/internal/model"
)

func TestClassifyDefaults(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name       string
		confidence float64
		want       model.Classification
	}{
		{"well above upper", 0.95, model.ClassExisting},
		{"just above upper", 0.851, model.ClassExisting},
		{"exactly upper stays suspected", 0.85, model.ClassSuspectedDuplicate},
		{"mid band", 0.78, model.ClassSuspectedDuplicate},
		{"exactly lower is suspected", 0.70, model.ClassSuspectedDuplicate},
		{"just below lower", 0.699, model.ClassNew},
		{"no signal", 0, model.ClassNew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.confidence, nil, cfg))
		})
	}
}

func TestClassifyLearnedThreshold(t *testing.T) {
	cfg := DefaultConfig()
	pat := model.DefaultPattern("modestmode")
	pat.SampleSize = 25
	pat.ConfidenceThreshold = 0.90

	// The learned upper tightens: 0.88 would clear the fixed 0.85 but not
	// the retailer's learned 0.90.
	assert.Equal(t, model.ClassSuspectedDuplicate, Classify(0.88, pat, cfg))
	assert.Equal(t, model.ClassExisting, Classify(0.91, pat, cfg))
}

func TestClassifyBootstrapGuard(t *testing.T) {
	cfg := DefaultConfig()
	pat := model.DefaultPattern("modestmode")
	pat.SampleSize = 5
	pat.ConfidenceThreshold = 0.90

	// Too few samples: the learned threshold is ignored.
	assert.Equal(t, model.ClassExisting, Classify(0.88, pat, cfg))
}

func TestClassifyImplausibleLearnedThresholdIgnored(t *testing.T) {
	cfg := DefaultConfig()
	pat := model.DefaultPattern("modestmode")
	pat.SampleSize = 50

	pat.ConfidenceThreshold = 0.50
	assert.Equal(t, model.ClassExisting, Classify(0.88, pat, cfg))

	pat.ConfidenceThreshold = 0.99
	assert.Equal(t, model.ClassExisting, Classify(0.88, pat, cfg))
}

func TestClassifyLearnedUpperMustExceedLower(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LowerThreshold = 0.80
	pat := model.DefaultPattern("modestmode")
	pat.SampleSize = 50
	pat.ConfidenceThreshold = 0.78

	// Learned upper at or below the lower bound would erase the review
	// band; fall back to the fixed upper.
	assert.Equal(t, model.ClassSuspectedDuplicate, Classify(0.84, pat, cfg))
	assert.Equal(t, model.ClassExisting, Classify(0.86, pat, cfg))
}
