package approval

import (
	"strings"
	"time"

	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

// Advance describes what an approval did to the instance
type Advance struct {
	// ApprovedStep is the filtered position that was approved
	ApprovedStep int
	// TotalSteps is the length of the line
	TotalSteps int
	// Completed is set when the instance reached COMPLETED
	Completed bool
	// Override is set when a final-approval override skipped the rest of the line
	Override bool
	// Skipped lists the positions bypassed by an override
	Skipped []int
}

// Tracker applies sign/approve/reject actions to one instance in memory.
// Callers persist the instance afterwards.
type Tracker struct {
	inst *entity.ApprovalInstance
}

// NewTracker wraps inst after checking its shape
func NewTracker(inst *entity.ApprovalInstance) (*Tracker, error) {
	if err := CheckIntegrity(inst); err != nil {
		return nil, err
	}
	return &Tracker{inst: inst}, nil
}

// Instance returns the tracked instance
func (t *Tracker) Instance() *entity.ApprovalInstance {
	return t.inst
}

// CurrentStep returns the step awaiting action, if any
func (t *Tracker) CurrentStep() (*entity.StepInstance, bool) {
	for i := range t.inst.Steps {
		if t.inst.Steps[i].IsCurrent {
			return &t.inst.Steps[i], true
		}
	}
	return nil, false
}

// current resolves the step an actor may act on. The check order is fixed:
// inactive instance, then wrong actor, then wrong target step.
func (t *Tracker) current(actorID string, target int) (*entity.StepInstance, error) {
	if !t.inst.IsActive() {
		return nil, apperr.StateConflict("instance %d is %s", t.inst.ID, t.inst.Status)
	}
	cur, ok := t.CurrentStep()
	if !ok {
		return nil, apperr.Corrupted("active instance %d has no current step", t.inst.ID)
	}
	if cur.ResolvedApproverID != actorID {
		return nil, apperr.Unauthorized("%s is not the approver of current step %d", actorID, cur.StepOrder)
	}
	if target != 0 && target != cur.StepOrder {
		return nil, apperr.StateConflict("step %d is not current (current is %d)", target, cur.StepOrder)
	}
	return cur, nil
}

// Sign records the approver's signature on the current step
func (t *Tracker) Sign(stepOrder int, actorID, signatureRef string, now time.Time) error {
	if stepOrder < 1 {
		return apperr.Validation("step order must be positive, got %d", stepOrder)
	}
	cur, err := t.current(actorID, stepOrder)
	if err != nil {
		return err
	}
	if cur.IsSigned {
		return apperr.StateConflict("step %d is already signed", cur.StepOrder)
	}
	if signatureRef == "" {
		return apperr.Precondition("%s has no stored signature", actorID)
	}

	signedAt := now
	cur.IsSigned = true
	cur.SignatureRef = signatureRef
	cur.SignedAt = &signedAt
	return nil
}

// Unsign retracts a signature while the step is still current
func (t *Tracker) Unsign(stepOrder int, actorID string) error {
	if stepOrder < 1 {
		return apperr.Validation("step order must be positive, got %d", stepOrder)
	}
	cur, err := t.current(actorID, stepOrder)
	if err != nil {
		return err
	}
	if !cur.IsSigned {
		return apperr.StateConflict("step %d is not signed", cur.StepOrder)
	}

	cur.IsSigned = false
	cur.SignatureRef = ""
	cur.SignedAt = nil
	return nil
}

// ApproveCurrent advances past the current step. The step must already be signed.
func (t *Tracker) ApproveCurrent(actorID string, now time.Time) (Advance, error) {
	cur, err := t.current(actorID, 0)
	if err != nil {
		return Advance{}, err
	}
	if !cur.IsSigned {
		return Advance{}, apperr.StateConflict("step %d must be signed before approval", cur.StepOrder)
	}

	approvedAt := now
	cur.IsCurrent = false
	cur.IsApproved = true
	cur.ApprovedAt = &approvedAt

	adv := Advance{ApprovedStep: cur.StepOrder, TotalSteps: len(t.inst.Steps)}
	if cur.StepOrder < len(t.inst.Steps) {
		t.inst.Steps[cur.StepOrder].IsCurrent = true
		return adv, nil
	}

	t.close(entity.InstanceCompleted, now)
	adv.Completed = true
	return adv, nil
}

// FinalApprove lets the approver of a step flagged for final approval
// complete the instance at once. The remaining steps are marked skipped.
func (t *Tracker) FinalApprove(actorID string, now time.Time) (Advance, error) {
	cur, err := t.current(actorID, 0)
	if err != nil {
		return Advance{}, err
	}
	if !cur.IsFinalApprovalAvailable {
		return Advance{}, apperr.Unauthorized("step %d does not allow final approval", cur.StepOrder)
	}
	if !cur.IsSigned {
		return Advance{}, apperr.StateConflict("step %d must be signed before approval", cur.StepOrder)
	}

	approvedAt := now
	cur.IsCurrent = false
	cur.IsApproved = true
	cur.ApprovedAt = &approvedAt

	adv := Advance{ApprovedStep: cur.StepOrder, TotalSteps: len(t.inst.Steps), Completed: true, Override: true}
	for i := cur.StepOrder; i < len(t.inst.Steps); i++ {
		t.inst.Steps[i].IsSkipped = true
		adv.Skipped = append(adv.Skipped, t.inst.Steps[i].StepOrder)
	}
	t.close(entity.InstanceCompleted, now)
	return adv, nil
}

// RejectCurrent rejects the current step and retires the instance
func (t *Tracker) RejectCurrent(actorID, reason string, now time.Time) error {
	cur, err := t.current(actorID, 0)
	if err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.Validation("rejection reason is required")
	}

	rejectedAt := now
	cur.IsCurrent = false
	cur.IsRejected = true
	cur.RejectionReason = reason
	cur.RejectedAt = &rejectedAt
	cur.RejectedBy = actorID

	t.close(entity.InstanceRejected, now)
	return nil
}

// Withdraw retires an active instance without a step rejection
func (t *Tracker) Withdraw(now time.Time) error {
	if !t.inst.IsActive() {
		return apperr.StateConflict("instance %d is %s", t.inst.ID, t.inst.Status)
	}
	for i := range t.inst.Steps {
		t.inst.Steps[i].IsCurrent = false
	}
	t.close(entity.InstanceWithdrawn, now)
	return nil
}

func (t *Tracker) close(status entity.InstanceStatus, now time.Time) {
	closedAt := now
	t.inst.Status = status
	t.inst.ClosedAt = &closedAt
}

// CheckIntegrity verifies the stored shape of an instance
func CheckIntegrity(inst *entity.ApprovalInstance) error {
	if inst == nil || len(inst.Steps) == 0 {
		return apperr.Corrupted("instance has no steps")
	}

	currents := 0
	rejected := 0
	for i, s := range inst.Steps {
		if s.StepOrder != i+1 {
			return apperr.Corrupted("instance %d: step at position %d has order %d", inst.ID, i+1, s.StepOrder)
		}
		if s.ResolvedApproverID == "" {
			return apperr.Corrupted("instance %d: step %d has no approver", inst.ID, s.StepOrder)
		}
		if s.IsCurrent {
			currents++
			for _, prior := range inst.Steps[:i] {
				if !prior.IsApproved {
					return apperr.Corrupted("instance %d: step %d is current before step %d was approved", inst.ID, s.StepOrder, prior.StepOrder)
				}
			}
		}
		if s.IsRejected {
			rejected++
		}
	}

	switch inst.Status {
	case entity.InstanceActive:
		if currents != 1 {
			return apperr.Corrupted("active instance %d has %d current steps", inst.ID, currents)
		}
	case entity.InstanceCompleted:
		if currents != 0 {
			return apperr.Corrupted("completed instance %d has a current step", inst.ID)
		}
		for _, s := range inst.Steps {
			if !s.IsApproved && !s.IsSkipped {
				return apperr.Corrupted("completed instance %d has unfinished step %d", inst.ID, s.StepOrder)
			}
		}
	case entity.InstanceRejected:
		if currents != 0 || rejected != 1 {
			return apperr.Corrupted("rejected instance %d has %d current and %d rejected steps", inst.ID, currents, rejected)
		}
	case entity.InstanceWithdrawn:
		if currents != 0 {
			return apperr.Corrupted("withdrawn instance %d has a current step", inst.ID)
		}
	default:
		return apperr.Corrupted("instance %d has unknown status %q", inst.ID, inst.Status)
	}
	return nil
}
