// Package pattern maintains per-retailer matching statistics. Learning is
// online and incremental: every matching outcome folds into the retailer's
// aggregate row, upserted with last-writer-wins semantics. The aggregate is
// statistical, not a transactional ledger, so concurrent runs for the same
// retailer may drop an increment without harm.
package pattern

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/yavzali/catalogwatch/internal/model"
)

// Store is the persistence slice the learner needs.
type Store interface {
	// GetPattern returns nil (no error) for an unseen retailer.
	GetPattern(ctx context.Context, retailer string) (*model.RetailerPattern, error)
	UpsertPattern(ctx context.Context, p *model.RetailerPattern) error
}

// Learner updates retailer patterns from matching outcomes.
type Learner struct {
	store Store
}

// NewLearner creates a Learner over the given pattern store.
func NewLearner(store Store) *Learner {
	return &Learner{store: store}
}

// Get returns the retailer's pattern, or the conservative default for a
// retailer with no history: the matching engine must never fail cold.
func (l *Learner) Get(ctx context.Context, retailer string) (*model.RetailerPattern, error) {
	p, err := l.store.GetPattern(ctx, retailer)
	if err != nil {
		return nil, eris.Wrapf(err, "pattern: get %s", retailer)
	}
	if p == nil {
		return model.DefaultPattern(retailer), nil
	}
	if p.MethodStats == nil {
		p.MethodStats = map[model.MatchMethod]model.MethodStat{}
	}
	return p, nil
}

// Record folds one matching outcome into the retailer's pattern and persists
// it. It returns the updated pattern so callers can keep matching against
// fresh statistics within a run.
func (l *Learner) Record(ctx context.Context, retailer string, method model.MatchMethod, confidence float64, urlChanged bool) (*model.RetailerPattern, error) {
	p, err := l.Get(ctx, retailer)
	if err != nil {
		return nil, err
	}

	p.SampleSize++
	if urlChanged {
		p.URLChangesDetected++
	}
	p.URLStabilityScore = 1 - float64(p.URLChangesDetected)/float64(p.SampleSize)

	stat := p.MethodStats[method]
	stat.Count++
	stat.ConfidenceSum += confidence
	p.MethodStats[method] = stat

	// best_method = most frequently successful method so far; ties keep the
	// incumbent. confidence_threshold = running mean confidence of best.
	best := p.BestMethod
	bestCount := p.MethodStats[best].Count
	for m, s := range p.MethodStats {
		if s.Count > bestCount {
			best, bestCount = m, s.Count
		}
	}
	p.BestMethod = best
	p.ConfidenceThreshold = p.MethodStats[best].Mean()
	p.UpdatedAt = time.Now().UTC()

	if err := l.store.UpsertPattern(ctx, p); err != nil {
		return nil, eris.Wrapf(err, "pattern: upsert %s", retailer)
	}

	zap.L().Debug("pattern updated",
		zap.String("retailer", retailer),
		zap.String("method", string(method)),
		zap.Int("sample_size", p.SampleSize),
		zap.Float64("url_stability", p.URLStabilityScore),
	)
	return p, nil
}
