package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yavzali/catalogwatch/internal/model"
)

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		from model.LifecycleStage
		tr   Transition
		want bool
	}{
		{"queue from discovered", model.StageDiscovered, TransitionQueue, true},
		{"import from discovered", model.StageDiscovered, TransitionImport, true},
		{"approve from pending", model.StagePendingAssessment, TransitionApprove, true},
		{"reject from pending", model.StagePendingAssessment, TransitionReject, true},
		{"reassess from approved", model.StageAssessedApproved, TransitionReassess, true},
		{"reassess from rejected", model.StageAssessedRejected, TransitionReassess, true},

		{"approve from discovered", model.StageDiscovered, TransitionApprove, false},
		{"queue from pending", model.StagePendingAssessment, TransitionQueue, false},
		{"queue from approved", model.StageAssessedApproved, TransitionQueue, false},
		{"import from pending", model.StagePendingAssessment, TransitionImport, false},
		{"reassess from imported", model.StageImportedDirect, TransitionReassess, false},
		{"reject from rejected", model.StageAssessedRejected, TransitionReject, false},
		{"unknown transition", model.StageDiscovered, Transition("promote"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.from, tt.tr))
		})
	}
}

func TestApply(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	p := &model.Product{LifecycleStage: model.StageDiscovered}
	require.NoError(t, Apply(p, TransitionQueue, now))
	assert.Equal(t, model.StagePendingAssessment, p.LifecycleStage)
	assert.Nil(t, p.AssessedAt)
	assert.Equal(t, now, p.UpdatedAt)

	require.NoError(t, Apply(p, TransitionApprove, now.Add(time.Hour)))
	assert.Equal(t, model.StageAssessedApproved, p.LifecycleStage)
	require.NotNil(t, p.AssessedAt)
	assert.Equal(t, now.Add(time.Hour), *p.AssessedAt)
}

func TestApplyInvalid(t *testing.T) {
	p := &model.Product{LifecycleStage: model.StageDiscovered}
	err := Apply(p, TransitionApprove, time.Now())
	require.Error(t, err)
	assert.Equal(t, model.StageDiscovered, p.LifecycleStage)
	assert.Nil(t, p.AssessedAt)
}

func TestAssessedAtStampedOnce(t *testing.T) {
	first := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	p := &model.Product{LifecycleStage: model.StagePendingAssessment}
	require.NoError(t, Apply(p, TransitionReject, first))
	require.NotNil(t, p.AssessedAt)
	assert.Equal(t, first, *p.AssessedAt)

	// A reassessment round ending in approval keeps the original stamp.
	require.NoError(t, Apply(p, TransitionReassess, later))
	assert.Equal(t, model.StagePendingAssessment, p.LifecycleStage)
	require.NoError(t, Apply(p, TransitionApprove, later.Add(time.Hour)))
	assert.Equal(t, model.StageAssessedApproved, p.LifecycleStage)
	assert.Equal(t, first, *p.AssessedAt)
	assert.Equal(t, later.Add(time.Hour), p.UpdatedAt)
}

func TestImportDirectStampsAssessedAt(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	p := &model.Product{LifecycleStage: model.StageDiscovered}
	require.NoError(t, Apply(p, TransitionImport, now))
	assert.Equal(t, model.StageImportedDirect, p.LifecycleStage)
	require.NotNil(t, p.AssessedAt)
	assert.Equal(t, now, *p.AssessedAt)
}
