// Package lifecycle validates and applies product lifecycle transitions.
// Transitions are monotonic: a product never silently moves backward, and
// assessed_at is written exactly once, by the first terminal transition.
package lifecycle

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/yavzali/catalogwatch/internal/model"
)

// Transition is an explicit, named state change request.
type Transition string

const (
	// TransitionQueue moves a discovered product into human assessment.
	TransitionQueue Transition = "queue_assessment"
	// TransitionImport is the bypass path for manually sourced items.
	TransitionImport Transition = "import_direct"
	// TransitionApprove and TransitionReject end an assessment.
	TransitionApprove Transition = "approve"
	TransitionReject  Transition = "reject"
	// TransitionReassess explicitly reopens a terminal product for another
	// assessment round. It never touches assessed_at.
	TransitionReassess Transition = "reassess"
)

// allowed maps each transition to its valid source stages and target stage.
var allowed = map[Transition]struct {
	from []model.LifecycleStage
	to   model.LifecycleStage
}{
	TransitionQueue:    {from: []model.LifecycleStage{model.StageDiscovered}, to: model.StagePendingAssessment},
	TransitionImport:   {from: []model.LifecycleStage{model.StageDiscovered}, to: model.StageImportedDirect},
	TransitionApprove:  {from: []model.LifecycleStage{model.StagePendingAssessment}, to: model.StageAssessedApproved},
	TransitionReject:   {from: []model.LifecycleStage{model.StagePendingAssessment}, to: model.StageAssessedRejected},
	TransitionReassess: {from: []model.LifecycleStage{model.StageAssessedApproved, model.StageAssessedRejected}, to: model.StagePendingAssessment},
}

// Valid reports whether the transition may be applied from the given stage.
func Valid(from model.LifecycleStage, tr Transition) bool {
	rule, ok := allowed[tr]
	if !ok {
		return false
	}
	for _, f := range rule.from {
		if f == from {
			return true
		}
	}
	return false
}

// Apply mutates the product's lifecycle stage in place. The first transition
// into a terminal stage stamps assessed_at; re-assessment rounds keep the
// original timestamp.
func Apply(p *model.Product, tr Transition, now time.Time) error {
	if !Valid(p.LifecycleStage, tr) {
		return eris.Errorf("lifecycle: invalid transition %s from %s", tr, p.LifecycleStage)
	}
	p.LifecycleStage = allowed[tr].to
	if p.LifecycleStage.Terminal() && p.AssessedAt == nil {
		t := now.UTC()
		p.AssessedAt = &t
	}
	p.UpdatedAt = now.UTC()
	return nil
}
