// Package queue implements assessment queue decision validation and the
// duplicate→modesty promotion rule. Resolve is pure over the item and
// decision: it returns the follow-up insertions instead of persisting them,
// keeping queue mechanics out of the decision logic.
package queue

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/yavzali/catalogwatch/internal/model"
)

// validDecisions maps each review type to its allowed decision set.
var validDecisions = map[model.ReviewType][]model.Decision{
	model.ReviewModesty: {
		model.DecisionModest,
		model.DecisionModeratelyModest,
		model.DecisionNotModest,
	},
	model.ReviewDuplication: {
		model.DecisionDuplicate,
		model.DecisionNotDuplicate,
	},
}

// ValidDecision reports whether the decision is allowed for the review type.
func ValidDecision(rt model.ReviewType, d model.Decision) bool {
	for _, v := range validDecisions[rt] {
		if v == d {
			return true
		}
	}
	return false
}

// Decisions returns the allowed decision set for a review type.
func Decisions(rt model.ReviewType) []model.Decision {
	return validDecisions[rt]
}

// Resolve applies a reviewer decision to a pending item, mutating it in
// place, and returns the follow-up items the caller must insert in the same
// persistence scope.
//
// Resolving a duplication item with not_duplicate always yields exactly one
// modesty item at high priority carrying the same payload — the only path by
// which a suspected duplicate re-enters the full assessment pipeline.
// Invalid decisions are rejected without mutating the item.
func Resolve(item *model.QueueItem, decision model.Decision, now time.Time) ([]model.QueueItem, error) {
	if item.Status != model.QueueStatusPending {
		return nil, eris.Errorf("queue: item %d already reviewed", item.ID)
	}
	if !ValidDecision(item.ReviewType, decision) {
		return nil, eris.Errorf("queue: decision %q invalid for review type %q", decision, item.ReviewType)
	}

	item.Status = model.QueueStatusReviewed
	item.Decision = decision
	t := now.UTC()
	item.ReviewedAt = &t

	var followUps []model.QueueItem
	if item.ReviewType == model.ReviewDuplication && decision == model.DecisionNotDuplicate {
		followUps = append(followUps, model.QueueItem{
			Retailer:   item.Retailer,
			ProductURL: item.ProductURL,
			Payload:    item.Payload,
			ReviewType: model.ReviewModesty,
			Priority:   model.PriorityHigh,
			Status:     model.QueueStatusPending,
			CreatedAt:  t,
		})
	}
	return followUps, nil
}
