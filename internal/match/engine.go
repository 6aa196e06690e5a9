// Package match implements the multi-strategy catalog matching engine. Each
// strategy is a pure function producing at most one candidate; the engine
// evaluates every applicable strategy and keeps the highest-confidence
// result so routing and audit always see the strongest signal.
package match

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/yavzali/catalogwatch/internal/model"
)

// Strategy confidence constants.
const (
	confExactURL      = 1.00
	confNormalizedURL = 0.95
	confProductCode   = 0.90
	confTitlePrice    = 0.95

	// Fuzzy title: anchors at similarity 0.95, moving 1:1 with similarity.
	fuzzyAnchorPriceClose = 0.88
	fuzzyAnchorPriceDiff  = 0.75
	fuzzyAnchorSimilarity = 0.95
	fuzzyConfFloor        = 0.60
	fuzzyConfCeiling      = 0.93

	// Image overlap band.
	imageConfFloor          = 0.65
	imageConfCeiling        = 0.80
	imageConfCeilingFlagged = 0.95
	imageOverlapMin         = 0.50
)

// ProductFinder is the slice of the product store the engine queries.
type ProductFinder interface {
	ProductByURL(ctx context.Context, retailer, url string) (*model.Product, error)
	ProductByNormalizedURL(ctx context.Context, retailer, normalizedURL string) (*model.Product, error)
	ProductByCode(ctx context.Context, retailer, code string) (*model.Product, error)
	// ProductsByPriceBand returns the retailer's products priced in
	// [low, high]; low = high = 0 means no price bound.
	ProductsByPriceBand(ctx context.Context, retailer string, low, high float64) ([]model.Product, error)
}

// Config holds matching tolerances.
type Config struct {
	// PriceToleranceAbs is the absolute tolerance (dollars) under which two
	// prices count as matching.
	PriceToleranceAbs float64 `yaml:"price_tolerance_abs" mapstructure:"price_tolerance_abs"`
	// PriceTolerancePct is the relative tolerance as a fraction (0.05 = 5%).
	PriceTolerancePct float64 `yaml:"price_tolerance_pct" mapstructure:"price_tolerance_pct"`
	// FuzzyFloorPriceClose is the minimum title similarity for a fuzzy match
	// when the prices agree within tolerance.
	FuzzyFloorPriceClose float64 `yaml:"fuzzy_floor_price_close" mapstructure:"fuzzy_floor_price_close"`
	// FuzzyFloor is the minimum title similarity regardless of price.
	FuzzyFloor float64 `yaml:"fuzzy_floor" mapstructure:"fuzzy_floor"`
	// CandidateBandPct widens the price range query used to pull fuzzy and
	// image candidates (0.5 = entry price ±50%).
	CandidateBandPct float64 `yaml:"candidate_band_pct" mapstructure:"candidate_band_pct"`
}

// DefaultConfig returns the standard matching tolerances.
func DefaultConfig() Config {
	return Config{
		PriceToleranceAbs:    1.00,
		PriceTolerancePct:    0.05,
		FuzzyFloorPriceClose: 0.80,
		FuzzyFloor:           0.90,
		CandidateBandPct:     0.50,
	}
}

// Engine evaluates matching strategies against the product store.
type Engine struct {
	finder ProductFinder
	cfg    Config
}

// NewEngine creates a matching engine over the given product store slice.
func NewEngine(finder ProductFinder, cfg Config) *Engine {
	return &Engine{finder: finder, cfg: cfg}
}

// strategy produces at most one candidate for an entry. pool is the
// price-banded candidate slice shared by the content strategies; identifier
// strategies ignore it.
type strategy struct {
	method model.MatchMethod
	run    func(ctx context.Context, entry *model.CatalogEntry, pat *model.RetailerPattern, pool []model.Product) (*model.MatchCandidate, error)
}

// Match evaluates matching strategies for one entry and returns the
// highest-confidence candidate, or nil when nothing matches.
//
// For retailers with unstable URLs (stability < 0.50, or fuzzy matching
// already established as the best method) the identifier strategies are
// skipped entirely. Otherwise identifier strategies run first but content
// strategies are still always attempted: the maximum across all attempted
// strategies wins. A strategy whose inputs are missing silently skips.
func (e *Engine) Match(ctx context.Context, entry *model.CatalogEntry, pat *model.RetailerPattern) (*model.MatchCandidate, error) {
	if pat == nil {
		pat = model.DefaultPattern(entry.Retailer)
	}
	skipIdentifiers := pat.URLStabilityScore < 0.50 || pat.BestMethod == model.MethodFuzzyTitle

	pool, err := e.candidatePool(ctx, entry)
	if err != nil {
		return nil, err
	}

	strategies := []strategy{
		{model.MethodExactURL, e.exactURL},
		{model.MethodNormalizedURL, e.normalizedURL},
		{model.MethodProductCode, e.productCode},
		{model.MethodTitlePrice, e.titlePrice},
		{model.MethodFuzzyTitle, e.fuzzyTitle},
		{model.MethodImageOverlap, e.imageOverlap},
	}

	var best *model.MatchCandidate
	for _, s := range strategies {
		if skipIdentifiers && s.method.URLBased() {
			continue
		}
		cand, err := s.run(ctx, entry, pat, pool)
		if err != nil {
			return nil, eris.Wrapf(err, "match: %s strategy", s.method)
		}
		if cand != nil && (best == nil || cand.Confidence > best.Confidence) {
			best = cand
		}
	}
	return best, nil
}

// candidatePool pulls the retailer's products in a widened price band around
// the entry price, for the content strategies. Entries without a price pull
// the whole retailer slice.
func (e *Engine) candidatePool(ctx context.Context, entry *model.CatalogEntry) ([]model.Product, error) {
	low, high := 0.0, 0.0
	if entry.Price > 0 {
		low = entry.Price * (1 - e.cfg.CandidateBandPct)
		high = entry.Price * (1 + e.cfg.CandidateBandPct)
	}
	pool, err := e.finder.ProductsByPriceBand(ctx, entry.Retailer, low, high)
	if err != nil {
		return nil, eris.Wrap(err, "match: candidate pool")
	}
	return pool, nil
}

func (e *Engine) exactURL(ctx context.Context, entry *model.CatalogEntry, _ *model.RetailerPattern, _ []model.Product) (*model.MatchCandidate, error) {
	if entry.CatalogURL == "" {
		return nil, nil
	}
	p, err := e.finder.ProductByURL(ctx, entry.Retailer, entry.CatalogURL)
	if err != nil || p == nil {
		return nil, err
	}
	return &model.MatchCandidate{Entry: entry, Product: p, Method: model.MethodExactURL, Confidence: confExactURL}, nil
}

func (e *Engine) normalizedURL(ctx context.Context, entry *model.CatalogEntry, _ *model.RetailerPattern, _ []model.Product) (*model.MatchCandidate, error) {
	normalized := NormalizeURL(entry.CatalogURL)
	if normalized == "" {
		return nil, nil
	}
	p, err := e.finder.ProductByNormalizedURL(ctx, entry.Retailer, normalized)
	if err != nil || p == nil {
		return nil, err
	}
	return &model.MatchCandidate{Entry: entry, Product: p, Method: model.MethodNormalizedURL, Confidence: confNormalizedURL}, nil
}

func (e *Engine) productCode(ctx context.Context, entry *model.CatalogEntry, _ *model.RetailerPattern, _ []model.Product) (*model.MatchCandidate, error) {
	if entry.ProductCode == "" {
		return nil, nil
	}
	p, err := e.finder.ProductByCode(ctx, entry.Retailer, entry.ProductCode)
	if err != nil || p == nil {
		return nil, err
	}
	return &model.MatchCandidate{Entry: entry, Product: p, Method: model.MethodProductCode, Confidence: confProductCode}, nil
}

func (e *Engine) titlePrice(_ context.Context, entry *model.CatalogEntry, _ *model.RetailerPattern, pool []model.Product) (*model.MatchCandidate, error) {
	if entry.Title == "" || entry.Price <= 0 {
		return nil, nil
	}
	canonical := CanonicalTitle(entry.Title)
	for i := range pool {
		p := &pool[i]
		if CanonicalTitle(p.Title) == canonical && e.priceClose(entry.Price, p.Price) {
			return &model.MatchCandidate{Entry: entry, Product: p, Method: model.MethodTitlePrice, Confidence: confTitlePrice}, nil
		}
	}
	return nil, nil
}

func (e *Engine) fuzzyTitle(_ context.Context, entry *model.CatalogEntry, _ *model.RetailerPattern, pool []model.Product) (*model.MatchCandidate, error) {
	if entry.Title == "" {
		return nil, nil
	}
	var best *model.MatchCandidate
	for i := range pool {
		p := &pool[i]
		if p.Title == "" {
			continue
		}
		sim := TitleSimilarity(entry.Title, p.Title)
		priceClose := entry.Price > 0 && p.Price > 0 && e.priceClose(entry.Price, p.Price)
		if sim < e.cfg.FuzzyFloor && !(priceClose && sim >= e.cfg.FuzzyFloorPriceClose) {
			continue
		}
		conf := fuzzyConfidence(sim, priceClose)
		if best == nil || conf > best.Confidence {
			best = &model.MatchCandidate{Entry: entry, Product: p, Method: model.MethodFuzzyTitle, Confidence: conf}
		}
	}
	return best, nil
}

func (e *Engine) imageOverlap(_ context.Context, entry *model.CatalogEntry, pat *model.RetailerPattern, pool []model.Product) (*model.MatchCandidate, error) {
	if len(entry.ImageURLs) == 0 {
		return nil, nil
	}
	var best *model.MatchCandidate
	for i := range pool {
		p := &pool[i]
		if len(p.ImageURLs) == 0 {
			continue
		}
		ratio := imageOverlap(entry.ImageURLs, p.ImageURLs)
		if ratio < imageOverlapMin {
			continue
		}
		conf := imageConfidence(ratio, pat.ImageConsistent)
		if best == nil || conf > best.Confidence {
			best = &model.MatchCandidate{Entry: entry, Product: p, Method: model.MethodImageOverlap, Confidence: conf}
		}
	}
	return best, nil
}

// priceClose reports whether two prices agree within the absolute or
// relative tolerance, whichever is looser.
func (e *Engine) priceClose(a, b float64) bool {
	delta := math.Abs(a - b)
	if delta <= e.cfg.PriceToleranceAbs {
		return true
	}
	ref := math.Max(a, b)
	return ref > 0 && delta/ref <= e.cfg.PriceTolerancePct
}

// fuzzyConfidence maps a title similarity to a confidence. The anchor at
// similarity 0.95 is 0.88 when prices agree and 0.75 when they differ; the
// confidence moves 1:1 with similarity around the anchor, clamped to the
// fuzzy band so a fuzzy match can never outrank an identifier match.
func fuzzyConfidence(sim float64, priceClose bool) float64 {
	anchor := fuzzyAnchorPriceDiff
	if priceClose {
		anchor = fuzzyAnchorPriceClose
	}
	conf := anchor + (sim - fuzzyAnchorSimilarity)
	if conf < fuzzyConfFloor {
		conf = fuzzyConfFloor
	}
	if conf > fuzzyConfCeiling {
		conf = fuzzyConfCeiling
	}
	return conf
}

// imageConfidence maps an overlap ratio in [0.5, 1.0] onto the image band.
// The upper band is reserved for retailers whose pattern marks their image
// hosting as consistent across scans.
func imageConfidence(ratio float64, imageConsistent bool) float64 {
	ceiling := imageConfCeiling
	if imageConsistent {
		ceiling = imageConfCeilingFlagged
	}
	conf := imageConfFloor + (ratio-imageOverlapMin)*(ceiling-imageConfFloor)/(1-imageOverlapMin)
	if conf > ceiling {
		conf = ceiling
	}
	return conf
}
