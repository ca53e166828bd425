package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

var t0 = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func activeInstance(approvers ...string) *entity.ApprovalInstance {
	steps := make([]entity.StepInstance, len(approvers))
	for i, a := range approvers {
		steps[i] = entity.StepInstance{StepOrder: i + 1, SourceStepOrder: i + 1, Name: a, ResolvedApproverID: a, IsCurrent: i == 0}
	}
	return &entity.ApprovalInstance{ID: 1, DocumentID: 5, Status: entity.InstanceActive, Steps: steps}
}

func newTracker(t *testing.T, inst *entity.ApprovalInstance) *Tracker {
	t.Helper()
	tr, err := NewTracker(inst)
	require.NoError(t, err)
	return tr
}

func currentOrders(inst *entity.ApprovalInstance) []int {
	var out []int
	for _, s := range inst.Steps {
		if s.IsCurrent {
			out = append(out, s.StepOrder)
		}
	}
	return out
}

func TestTracker_SignApproveThroughLine(t *testing.T) {
	inst := activeInstance("a", "b", "c")
	tr := newTracker(t, inst)

	for i, approver := range []string{"a", "b", "c"} {
		order := i + 1
		require.Equal(t, []int{order}, currentOrders(inst))

		require.NoError(t, tr.Sign(order, approver, "sig-"+approver, t0))
		adv, err := tr.ApproveCurrent(approver, t0)
		require.NoError(t, err)
		assert.Equal(t, order, adv.ApprovedStep)
		assert.Equal(t, 3, adv.TotalSteps)
		assert.Equal(t, order == 3, adv.Completed)
	}

	assert.Equal(t, entity.InstanceCompleted, inst.Status)
	assert.Empty(t, currentOrders(inst))
	assert.NotNil(t, inst.ClosedAt)
	assert.NoError(t, CheckIntegrity(inst))
	_, ok := tr.CurrentStep()
	assert.False(t, ok)
}

func TestTracker_SignByNonCurrentApprover(t *testing.T) {
	inst := activeInstance("a", "b")
	tr := newTracker(t, inst)

	err := tr.Sign(2, "b", "sig-b", t0)

	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.False(t, inst.Steps[0].IsSigned)
	assert.False(t, inst.Steps[1].IsSigned)
	assert.Equal(t, []int{1}, currentOrders(inst))
}

func TestTracker_SignChecks(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Tracker)
		order   int
		actor   string
		sig     string
		wantErr error
	}{
		{"current approver targets other step", nil, 2, "a", "sig", apperr.ErrStateConflict},
		{"stranger", nil, 1, "mallory", "sig", apperr.ErrUnauthorized},
		{"already signed", func(tr *Tracker) { _ = tr.Sign(1, "a", "sig", t0) }, 1, "a", "sig", apperr.ErrStateConflict},
		{"no stored signature", nil, 1, "a", "", apperr.ErrPrecondition},
		{"bad order", nil, 0, "a", "sig", apperr.ErrValidation},
		{"instance rejected", func(tr *Tracker) { _ = tr.RejectCurrent("a", "no", t0) }, 1, "a", "sig", apperr.ErrStateConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker(t, activeInstance("a", "b"))
			if tt.setup != nil {
				tt.setup(tr)
			}
			err := tr.Sign(tt.order, tt.actor, tt.sig, t0)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTracker_Unsign(t *testing.T) {
	inst := activeInstance("a", "b")
	tr := newTracker(t, inst)

	assert.ErrorIs(t, tr.Unsign(1, "a"), apperr.ErrStateConflict, "nothing to retract yet")

	require.NoError(t, tr.Sign(1, "a", "sig-a", t0))
	require.NoError(t, tr.Unsign(1, "a"))
	assert.False(t, inst.Steps[0].IsSigned)
	assert.Empty(t, inst.Steps[0].SignatureRef)
	assert.Nil(t, inst.Steps[0].SignedAt)

	require.NoError(t, tr.Sign(1, "a", "sig-a", t0))
	_, err := tr.ApproveCurrent("a", t0)
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Unsign(1, "a"), apperr.ErrUnauthorized, "step 1 is no longer current")
}

func TestTracker_ApproveUnsignedStepFails(t *testing.T) {
	inst := activeInstance("a", "b")
	tr := newTracker(t, inst)

	_, err := tr.ApproveCurrent("a", t0)

	assert.ErrorIs(t, err, apperr.ErrStateConflict)
	assert.Equal(t, []int{1}, currentOrders(inst))
	assert.False(t, inst.Steps[0].IsApproved)
}

func TestTracker_RejectRetiresInstance(t *testing.T) {
	inst := activeInstance("a", "b", "c")
	tr := newTracker(t, inst)
	require.NoError(t, tr.Sign(1, "a", "sig-a", t0))
	_, err := tr.ApproveCurrent("a", t0)
	require.NoError(t, err)

	assert.ErrorIs(t, tr.RejectCurrent("a", "late", t0), apperr.ErrUnauthorized)
	assert.ErrorIs(t, tr.RejectCurrent("b", "  ", t0), apperr.ErrValidation)

	require.NoError(t, tr.RejectCurrent("b", "night counts wrong", t0))

	rejected := inst.Steps[1]
	assert.True(t, rejected.IsRejected)
	assert.Equal(t, "night counts wrong", rejected.RejectionReason)
	assert.Equal(t, "b", rejected.RejectedBy)
	require.NotNil(t, rejected.RejectedAt)
	assert.Equal(t, entity.InstanceRejected, inst.Status)
	assert.Empty(t, currentOrders(inst))
	assert.Equal(t, entity.StepRejected, rejected.Phase())
	assert.NoError(t, CheckIntegrity(inst))

	_, err = tr.ApproveCurrent("c", t0)
	assert.ErrorIs(t, err, apperr.ErrStateConflict, "a rejected instance is never resumed")
}

func TestTracker_FinalApproveOverride(t *testing.T) {
	inst := activeInstance("a", "b", "c")
	inst.Steps[0].IsFinalApprovalAvailable = true
	tr := newTracker(t, inst)

	_, err := tr.FinalApprove("a", t0)
	assert.ErrorIs(t, err, apperr.ErrStateConflict, "must sign first")

	require.NoError(t, tr.Sign(1, "a", "sig-a", t0))
	adv, err := tr.FinalApprove("a", t0)
	require.NoError(t, err)

	assert.True(t, adv.Completed)
	assert.True(t, adv.Override)
	assert.Equal(t, []int{2, 3}, adv.Skipped)
	assert.Equal(t, entity.InstanceCompleted, inst.Status)
	assert.Equal(t, entity.StepSkipped, inst.Steps[2].Phase())
	assert.NoError(t, CheckIntegrity(inst))
}

func TestTracker_FinalApproveRequiresFlag(t *testing.T) {
	tr := newTracker(t, activeInstance("a", "b"))
	require.NoError(t, tr.Sign(1, "a", "sig-a", t0))

	_, err := tr.FinalApprove("a", t0)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestTracker_Withdraw(t *testing.T) {
	inst := activeInstance("a", "b")
	tr := newTracker(t, inst)

	require.NoError(t, tr.Withdraw(t0))
	assert.Equal(t, entity.InstanceWithdrawn, inst.Status)
	assert.Empty(t, currentOrders(inst))
	assert.ErrorIs(t, tr.Withdraw(t0), apperr.ErrStateConflict)
}

func TestCheckIntegrity(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*entity.ApprovalInstance)
	}{
		{"two current steps", func(i *entity.ApprovalInstance) { i.Steps[1].IsCurrent = true }},
		{"no current step", func(i *entity.ApprovalInstance) { i.Steps[0].IsCurrent = false }},
		{"gap in order", func(i *entity.ApprovalInstance) { i.Steps[1].StepOrder = 3 }},
		{"current before prior approved", func(i *entity.ApprovalInstance) {
			i.Steps[0].IsCurrent = false
			i.Steps[1].IsCurrent = true
		}},
		{"missing approver", func(i *entity.ApprovalInstance) { i.Steps[1].ResolvedApproverID = "" }},
		{"unknown status", func(i *entity.ApprovalInstance) { i.Status = "PAUSED" }},
		{"no steps", func(i *entity.ApprovalInstance) { i.Steps = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := activeInstance("a", "b")
			tt.mutate(inst)
			assert.ErrorIs(t, CheckIntegrity(inst), apperr.ErrCorrupted)
			_, err := NewTracker(inst)
			assert.ErrorIs(t, err, apperr.ErrCorrupted)
		})
	}
}
