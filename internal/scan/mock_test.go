package scan

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/yavzali/catalogwatch/internal/model"
	"github.com/yavzali/catalogwatch/internal/store"
)

// fakeStore is an in-memory store.Store mirroring the real backends'
// semantics closely enough for runner tests: run-scoped entry uniqueness
// and pending queue deduplication included.
type fakeStore struct {
	mu sync.Mutex

	runs     map[string]*model.ScanRun
	entries  []model.CatalogEntry
	products []*model.Product
	patterns map[string]*model.RetailerPattern
	queue    []*model.QueueItem
	events   []*model.PriceChangeEvent

	nextProductID int64
	nextQueueID   int64
	nextEventID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:     map[string]*model.ScanRun{},
		patterns: map[string]*model.RetailerPattern{},
	}
}

func (s *fakeStore) CreateScanRun(_ context.Context, run *model.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.Status = model.ScanRunStatusRunning
	run.StartedAt = time.Now().UTC()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *fakeStore) CompleteScanRun(_ context.Context, id string, stats *model.ScanStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return eris.Errorf("run not found: %s", id)
	}
	run.Status = model.ScanRunStatusCompleted
	run.Stats = stats
	now := time.Now().UTC()
	run.CompletedAt = &now
	return nil
}

func (s *fakeStore) FailScanRun(_ context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return eris.Errorf("run not found: %s", id)
	}
	run.Status = model.ScanRunStatusFailed
	run.Error = errMsg
	return nil
}

func (s *fakeStore) GetScanRun(_ context.Context, id string) (*model.ScanRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (s *fakeStore) InsertEntries(_ context.Context, entries []model.CatalogEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, e := range entries {
		dup := false
		for i := range s.entries {
			if s.entries[i].RunID == e.RunID && s.entries[i].CatalogURL == e.CatalogURL {
				dup = true
				break
			}
		}
		if !dup {
			s.entries = append(s.entries, e)
			inserted++
		}
	}
	return inserted, nil
}

func (s *fakeStore) UpdateEntryMatch(_ context.Context, runID, catalogURL string, method model.MatchMethod, confidence float64, class model.Classification, productID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		e := &s.entries[i]
		if e.RunID == runID && e.CatalogURL == catalogURL {
			e.MatchMethod = method
			e.MatchConfidence = &confidence
			e.Classification = class
			e.MatchedProductID = productID
			return nil
		}
	}
	return eris.Errorf("entry not found: %s %s", runID, catalogURL)
}

func (s *fakeStore) ListEntries(_ context.Context, runID string) ([]model.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CatalogEntry
	for _, e := range s.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if existing.Retailer == p.Retailer && existing.URL == p.URL {
			return eris.Errorf("duplicate product: %s", p.URL)
		}
	}
	s.nextProductID++
	p.ID = s.nextProductID
	cp := *p
	s.products = append(s.products, &cp)
	return nil
}

func (s *fakeStore) ProductByURL(_ context.Context, retailer, url string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.Retailer == retailer && p.URL == url {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ProductByNormalizedURL(_ context.Context, retailer, normalizedURL string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.Retailer == retailer && p.NormalizedURL == normalizedURL {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ProductByCode(_ context.Context, retailer, code string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.Retailer == retailer && p.ProductCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ProductsByPriceBand(_ context.Context, retailer string, low, high float64) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Product
	for _, p := range s.products {
		if p.Retailer != retailer {
			continue
		}
		if low == 0 && high == 0 || (p.Price >= low && p.Price <= high) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) ListProducts(_ context.Context, retailer string, limit, offset int) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Product
	for _, p := range s.products {
		if retailer == "" || p.Retailer == retailer {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateProductPrice(_ context.Context, id int64, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == id {
			p.Price = price
			p.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return eris.Errorf("product not found: %d", id)
}

func (s *fakeStore) UpdateProductLifecycle(_ context.Context, updated *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == updated.ID {
			p.LifecycleStage = updated.LifecycleStage
			p.AssessedAt = updated.AssessedAt
			p.UpdatedAt = updated.UpdatedAt
			return nil
		}
	}
	return eris.Errorf("product not found: %d", updated.ID)
}

func (s *fakeStore) UpdateProductCompleteness(_ context.Context, id int64, c model.Completeness) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == id {
			p.DataCompleteness = c
			return nil
		}
	}
	return eris.Errorf("product not found: %d", id)
}

func (s *fakeStore) GetPattern(_ context.Context, retailer string) (*model.RetailerPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[retailer]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) UpsertPattern(_ context.Context, p *model.RetailerPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.patterns[p.Retailer] = &cp
	return nil
}

func (s *fakeStore) ListPatterns(_ context.Context) ([]model.RetailerPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RetailerPattern
	for _, p := range s.patterns {
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) EnqueueItem(_ context.Context, item *model.QueueItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queue {
		if q.Status == model.QueueStatusPending &&
			q.Retailer == item.Retailer &&
			q.ProductURL == item.ProductURL &&
			q.ReviewType == item.ReviewType {
			return q.ID, nil
		}
	}
	s.nextQueueID++
	item.ID = s.nextQueueID
	item.Status = model.QueueStatusPending
	item.CreatedAt = time.Now().UTC()
	cp := *item
	s.queue = append(s.queue, &cp)
	return item.ID, nil
}

func (s *fakeStore) GetQueueItem(_ context.Context, id int64) (*model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queue {
		if q.ID == id {
			cp := *q
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListQueueItems(_ context.Context, f store.QueueFilter) ([]model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QueueItem
	for _, q := range s.queue {
		if f.Status != "" && q.Status != f.Status {
			continue
		}
		if f.ReviewType != "" && q.ReviewType != f.ReviewType {
			continue
		}
		if f.Priority != "" && q.Priority != f.Priority {
			continue
		}
		if f.Retailer != "" && q.Retailer != f.Retailer {
			continue
		}
		out = append(out, *q)
	}
	return out, nil
}

func (s *fakeStore) MarkItemReviewed(_ context.Context, item *model.QueueItem, followUps []model.QueueItem) error {
	s.mu.Lock()
	for _, q := range s.queue {
		if q.ID == item.ID {
			*q = *item
		}
	}
	s.mu.Unlock()
	for i := range followUps {
		if _, err := s.EnqueueItem(context.Background(), &followUps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) InsertPriceEvent(_ context.Context, ev *model.PriceChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	ev.ID = s.nextEventID
	cp := *ev
	s.events = append(s.events, &cp)
	return nil
}

func (s *fakeStore) ListPriceEvents(_ context.Context, onlyUnprocessed bool, limit int) ([]model.PriceChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PriceChangeEvent
	for _, ev := range s.events {
		if onlyUnprocessed && ev.Processed {
			continue
		}
		out = append(out, *ev)
	}
	return out, nil
}

func (s *fakeStore) MarkPriceEventProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			ev.Processed = true
			return nil
		}
	}
	return eris.Errorf("event not found: %d", id)
}

func (s *fakeStore) CountProductsByStage(_ context.Context) (map[model.LifecycleStage]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[model.LifecycleStage]int64{}
	for _, p := range s.products {
		out[p.LifecycleStage]++
	}
	return out, nil
}

func (s *fakeStore) CountQueueItems(ctx context.Context, f store.QueueFilter) (int64, error) {
	items, err := s.ListQueueItems(ctx, f)
	return int64(len(items)), err
}

func (s *fakeStore) CountPriceEvents(ctx context.Context, onlyUnprocessed bool) (int64, error) {
	events, err := s.ListPriceEvents(ctx, onlyUnprocessed, 0)
	return int64(len(events)), err
}

func (s *fakeStore) Ping(context.Context) error    { return nil }
func (s *fakeStore) Migrate(context.Context) error { return nil }
func (s *fakeStore) Close() error                  { return nil }
