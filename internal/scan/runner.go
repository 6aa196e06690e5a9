// Package scan orchestrates change-detection passes over retailer catalogs:
// snapshot persistence, matching, classification, routing and pattern learning.
package scan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yavzali/catalogwatch/internal/classify"
	"github.com/yavzali/catalogwatch/internal/lifecycle"
	"github.com/yavzali/catalogwatch/internal/match"
	"github.com/yavzali/catalogwatch/internal/model"
	"github.com/yavzali/catalogwatch/internal/pattern"
	"github.com/yavzali/catalogwatch/internal/pricewatch"
	"github.com/yavzali/catalogwatch/internal/store"
)

// Job is one catalog snapshot to process.
type Job struct {
	Retailer string
	Category string
	Kind     model.ScanKind
	Entries  []model.CatalogEntry
}

// Runner executes scan runs against a store.
type Runner struct {
	store       store.Store
	engine      *match.Engine
	learner     *pattern.Learner
	classifyCfg classify.Config
	priceCfg    pricewatch.Config
}

// NewRunner creates a Runner. The match engine reads product candidates
// straight from the store.
func NewRunner(st store.Store, matchCfg match.Config, classifyCfg classify.Config, priceCfg pricewatch.Config) *Runner {
	return &Runner{
		store:       st,
		engine:      match.NewEngine(st, matchCfg),
		learner:     pattern.NewLearner(st),
		classifyCfg: classifyCfg,
		priceCfg:    priceCfg,
	}
}

// Run processes one catalog snapshot: it records the run, persists the
// entries, matches each against known products and routes the outcome.
// The returned run carries the final stats even when processing fails
// partway through.
func (r *Runner) Run(ctx context.Context, job Job) (*model.ScanRun, error) {
	log := zap.L().With(
		zap.String("retailer", job.Retailer),
		zap.String("category", job.Category),
		zap.String("kind", string(job.Kind)),
	)

	run := &model.ScanRun{
		ID:       uuid.New().String(),
		Retailer: job.Retailer,
		Category: job.Category,
		Kind:     job.Kind,
	}
	if err := r.store.CreateScanRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "scan: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("scan: starting run", zap.Int("entries", len(job.Entries)))

	stats := &model.ScanStats{}
	entries := r.prepareEntries(run, job.Entries, stats)

	if _, err := r.store.InsertEntries(ctx, entries); err != nil {
		return r.fail(ctx, run, log, eris.Wrap(err, "scan: insert entries"))
	}

	for i := range entries {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, run, log, eris.Wrap(err, "scan: canceled"))
		}
		if err := r.processEntry(ctx, &entries[i], stats); err != nil {
			return r.fail(ctx, run, log, err)
		}
		stats.Entries++
	}

	if err := r.store.CompleteScanRun(ctx, run.ID, stats); err != nil {
		return nil, eris.Wrap(err, "scan: complete run")
	}
	run.Status = model.ScanRunStatusCompleted
	run.Stats = stats

	log.Info("scan: run complete",
		zap.Int("entries", stats.Entries),
		zap.Int("existing", stats.Existing),
		zap.Int("suspected", stats.SuspectedDuplicates),
		zap.Int("new", stats.New),
		zap.Int("price_changes", stats.PriceChanges),
		zap.Int("skipped", stats.Skipped),
	)
	return run, nil
}

// RunAll processes jobs for multiple retailers concurrently. Jobs for the
// same retailer run sequentially so matching and pattern updates never race
// within a retailer.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) ([]*model.ScanRun, error) {
	byRetailer := make(map[string][]Job)
	var order []string
	for _, job := range jobs {
		if _, seen := byRetailer[job.Retailer]; !seen {
			order = append(order, job.Retailer)
		}
		byRetailer[job.Retailer] = append(byRetailer[job.Retailer], job)
	}

	runs := make([][]*model.ScanRun, len(order))
	g, gCtx := errgroup.WithContext(ctx)
	for i, retailer := range order {
		i, retailerJobs := i, byRetailer[retailer]
		g.Go(func() error {
			for _, job := range retailerJobs {
				run, err := r.Run(gCtx, job)
				if err != nil {
					return err
				}
				runs[i] = append(runs[i], run)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flat []*model.ScanRun
	for _, rs := range runs {
		flat = append(flat, rs...)
	}
	return flat, nil
}

// prepareEntries stamps run metadata on each entry and drops malformed or
// within-run duplicate listings, counting them as skipped.
func (r *Runner) prepareEntries(run *model.ScanRun, raw []model.CatalogEntry, stats *model.ScanStats) []model.CatalogEntry {
	seen := make(map[string]struct{}, len(raw))
	entries := make([]model.CatalogEntry, 0, len(raw))
	for _, e := range raw {
		if e.CatalogURL == "" || e.Title == "" {
			stats.Skipped++
			continue
		}
		norm := match.NormalizeURL(e.CatalogURL)
		if _, dup := seen[norm]; dup {
			stats.Skipped++
			continue
		}
		seen[norm] = struct{}{}

		e.RunID = run.ID
		e.Retailer = run.Retailer
		if e.Category == "" {
			e.Category = run.Category
		}
		e.ScanKind = run.Kind
		if e.DiscoveredAt.IsZero() {
			e.DiscoveredAt = time.Now().UTC()
		}
		entries = append(entries, e)
	}
	return entries
}

func (r *Runner) processEntry(ctx context.Context, entry *model.CatalogEntry, stats *model.ScanStats) error {
	pat, err := r.learner.Get(ctx, entry.Retailer)
	if err != nil {
		return eris.Wrap(err, "scan: load pattern")
	}

	cand, err := r.engine.Match(ctx, entry, pat)
	if err != nil {
		return eris.Wrap(err, "scan: match entry")
	}

	if cand == nil {
		stats.New++
		return r.routeNew(ctx, entry)
	}

	class := classify.Classify(cand.Confidence, pat, r.classifyCfg)
	switch class {
	case model.ClassExisting:
		stats.Existing++
		return r.routeExisting(ctx, entry, cand, stats)
	case model.ClassSuspectedDuplicate:
		stats.SuspectedDuplicates++
		return r.routeSuspected(ctx, entry, cand)
	default:
		stats.New++
		return r.routeNew(ctx, entry)
	}
}

// routeExisting links the entry to its matched product, emits a price change
// event when the price moved, and feeds the confirmed match back into the
// retailer's pattern.
func (r *Runner) routeExisting(ctx context.Context, entry *model.CatalogEntry, cand *model.MatchCandidate, stats *model.ScanStats) error {
	product := cand.Product
	if err := r.store.UpdateEntryMatch(ctx, entry.RunID, entry.CatalogURL,
		cand.Method, cand.Confidence, model.ClassExisting, &product.ID); err != nil {
		return eris.Wrap(err, "scan: link entry")
	}

	if ev := pricewatch.Detect(product, entry, r.priceCfg, time.Now().UTC()); ev != nil {
		if err := r.store.InsertPriceEvent(ctx, ev); err != nil {
			return eris.Wrap(err, "scan: insert price event")
		}
		if err := r.store.UpdateProductPrice(ctx, product.ID, entry.Price); err != nil {
			return eris.Wrap(err, "scan: update product price")
		}
		stats.PriceChanges++
	}

	urlChanged := cand.Method != model.MethodExactURL &&
		match.NormalizeURL(entry.CatalogURL) != product.NormalizedURL
	if _, err := r.learner.Record(ctx, entry.Retailer, cand.Method, cand.Confidence, urlChanged); err != nil {
		return eris.Wrap(err, "scan: record pattern")
	}
	return nil
}

// routeSuspected queues the entry for human duplication review against the
// suspected product. The match stays unconfirmed, so the pattern is not
// updated here.
func (r *Runner) routeSuspected(ctx context.Context, entry *model.CatalogEntry, cand *model.MatchCandidate) error {
	product := cand.Product
	if err := r.store.UpdateEntryMatch(ctx, entry.RunID, entry.CatalogURL,
		cand.Method, cand.Confidence, model.ClassSuspectedDuplicate, &product.ID); err != nil {
		return eris.Wrap(err, "scan: link entry")
	}

	item := &model.QueueItem{
		Retailer:         entry.Retailer,
		ProductURL:       entry.CatalogURL,
		Payload:          payloadFromEntry(entry),
		ReviewType:       model.ReviewDuplication,
		Priority:         model.PriorityNormal,
		SuspectedMatchID: &product.ID,
	}
	if _, err := r.store.EnqueueItem(ctx, item); err != nil {
		return eris.Wrap(err, "scan: enqueue duplication review")
	}
	return nil
}

// routeNew creates a tracked product in pending assessment and queues it
// for modesty review.
func (r *Runner) routeNew(ctx context.Context, entry *model.CatalogEntry) error {
	if err := r.store.UpdateEntryMatch(ctx, entry.RunID, entry.CatalogURL,
		"", 0, model.ClassNew, nil); err != nil {
		return eris.Wrap(err, "scan: mark entry new")
	}

	product := &model.Product{
		Retailer:         entry.Retailer,
		URL:              entry.CatalogURL,
		NormalizedURL:    match.NormalizeURL(entry.CatalogURL),
		Title:            entry.Title,
		Price:            entry.Price,
		ProductCode:      entry.ProductCode,
		ImageURLs:        entry.ImageURLs,
		LifecycleStage:   model.StageDiscovered,
		DataCompleteness: model.CompletenessPartial,
	}
	if err := lifecycle.Apply(product, lifecycle.TransitionQueue, time.Now().UTC()); err != nil {
		return eris.Wrap(err, "scan: queue transition")
	}
	if err := r.store.CreateProduct(ctx, product); err != nil {
		return eris.Wrap(err, "scan: create product")
	}

	item := &model.QueueItem{
		Retailer:   entry.Retailer,
		ProductURL: entry.CatalogURL,
		Payload:    payloadFromEntry(entry),
		ReviewType: model.ReviewModesty,
		Priority:   model.PriorityNormal,
	}
	if _, err := r.store.EnqueueItem(ctx, item); err != nil {
		return eris.Wrap(err, "scan: enqueue modesty review")
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, run *model.ScanRun, log *zap.Logger, cause error) (*model.ScanRun, error) {
	if err := r.store.FailScanRun(ctx, run.ID, cause.Error()); err != nil {
		log.Warn("scan: failed to mark run failed", zap.Error(err))
	}
	run.Status = model.ScanRunStatusFailed
	log.Error("scan: run failed", zap.Error(cause))
	return run, cause
}

func payloadFromEntry(entry *model.CatalogEntry) model.ProductPayload {
	return model.ProductPayload{
		Title:       entry.Title,
		Price:       entry.Price,
		ProductCode: entry.ProductCode,
		ImageURLs:   entry.ImageURLs,
		CatalogURL:  entry.CatalogURL,
		Category:    entry.Category,
	}
}
