package queue

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/yavzali/catalogwatch/internal/lifecycle"
	"github.com/yavzali/catalogwatch/internal/model"
)

// Store is the persistence slice the resolution service needs.
type Store interface {
	GetQueueItem(ctx context.Context, id int64) (*model.QueueItem, error)
	// MarkItemReviewed flips the item's status and inserts the follow-ups in
	// one persistence scope.
	MarkItemReviewed(ctx context.Context, item *model.QueueItem, followUps []model.QueueItem) error
	ProductByURL(ctx context.Context, retailer, url string) (*model.Product, error)
	UpdateProductLifecycle(ctx context.Context, p *model.Product) error
}

// Service resolves queue items and applies the resulting lifecycle
// transitions to the linked product record.
type Service struct {
	store Store
}

// NewService creates a resolution service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ResolveItem validates and applies a reviewer decision. Modesty decisions
// additionally move the linked product (when one exists and is pending
// assessment) into its terminal stage. Returns the resolved item and any
// promotion follow-ups that were enqueued.
func (s *Service) ResolveItem(ctx context.Context, id int64, decision model.Decision) (*model.QueueItem, []model.QueueItem, error) {
	item, err := s.store.GetQueueItem(ctx, id)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "queue: get item %d", id)
	}
	if item == nil {
		return nil, nil, eris.Errorf("queue: item not found: %d", id)
	}

	now := time.Now()
	followUps, err := Resolve(item, decision, now)
	if err != nil {
		return nil, nil, err
	}

	if item.ReviewType == model.ReviewModesty {
		if err := s.assessProduct(ctx, item, decision, now); err != nil {
			return nil, nil, err
		}
	}

	if err := s.store.MarkItemReviewed(ctx, item, followUps); err != nil {
		return nil, nil, eris.Wrapf(err, "queue: mark reviewed %d", id)
	}

	zap.L().Info("queue item resolved",
		zap.Int64("id", item.ID),
		zap.String("review_type", string(item.ReviewType)),
		zap.String("decision", string(decision)),
		zap.Int("follow_ups", len(followUps)),
	)
	return item, followUps, nil
}

// assessProduct applies the modesty verdict to the product's lifecycle.
// Promoted duplicates may not have a product record yet; that is fine — the
// record is created by the external extraction path before the next round.
func (s *Service) assessProduct(ctx context.Context, item *model.QueueItem, decision model.Decision, now time.Time) error {
	p, err := s.store.ProductByURL(ctx, item.Retailer, item.ProductURL)
	if err != nil {
		return eris.Wrap(err, "queue: lookup product")
	}
	if p == nil || p.LifecycleStage != model.StagePendingAssessment {
		return nil
	}

	tr := lifecycle.TransitionApprove
	if decision == model.DecisionNotModest {
		tr = lifecycle.TransitionReject
	}
	if err := lifecycle.Apply(p, tr, now); err != nil {
		return err
	}
	if err := s.store.UpdateProductLifecycle(ctx, p); err != nil {
		return eris.Wrapf(err, "queue: persist lifecycle for product %d", p.ID)
	}
	return nil
}
