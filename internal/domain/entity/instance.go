package entity

import "time"

// InstanceStatus is the status of an approval instance
type InstanceStatus string

const (
	InstanceActive    InstanceStatus = "ACTIVE"
	InstanceCompleted InstanceStatus = "COMPLETED"
	InstanceRejected  InstanceStatus = "REJECTED"
	// InstanceWithdrawn marks an instance retired without a step rejection,
	// e.g. a contract returned to the admin by the employee.
	InstanceWithdrawn InstanceStatus = "WITHDRAWN"
)

// ApprovalInstance binds a resolved approval line to one document submission.
// Its step shape is fixed at creation; only per-step flags change afterwards.
type ApprovalInstance struct {
	ID           int64          `json:"id"`
	DocumentID   int64          `json:"document_id"`
	DocumentType DocumentType   `json:"document_type"`
	TemplateID   int64          `json:"template_id"`
	Status       InstanceStatus `json:"status"`
	Steps        []StepInstance `json:"steps"`
	Version      int            `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
}

// IsActive returns true while the instance still accepts step actions
func (i *ApprovalInstance) IsActive() bool {
	return i.Status == InstanceActive
}

// StepInstance is one materialized step of an instance
type StepInstance struct {
	ID              int64  `json:"id"`
	InstanceID      int64  `json:"instance_id"`
	StepOrder       int    `json:"step_order"`
	SourceStepOrder int    `json:"source_step_order"`
	Name            string `json:"name"`

	ResolvedApproverID string `json:"resolved_approver_id"`
	ApproverName       string `json:"approver_name,omitempty"`

	IsCurrent bool `json:"is_current"`

	IsSigned     bool       `json:"is_signed"`
	SignatureRef string     `json:"signature_ref,omitempty"`
	SignedAt     *time.Time `json:"signed_at,omitempty"`

	IsApproved bool       `json:"is_approved"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	// IsSkipped is set on steps bypassed by a final-approval override
	IsSkipped bool `json:"is_skipped"`

	IsRejected      bool       `json:"is_rejected"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectedBy      string     `json:"rejected_by,omitempty"`

	IsFinalApprovalAvailable bool `json:"is_final_approval_available"`
}

// StepPhase is the derived per-step state
type StepPhase string

const (
	StepPending  StepPhase = "PENDING"
	StepSigned   StepPhase = "SIGNED"
	StepAdvanced StepPhase = "ADVANCED"
	StepSkipped  StepPhase = "SKIPPED"
	StepRejected StepPhase = "REJECTED"
)

// Phase derives the step state from its flags
func (s *StepInstance) Phase() StepPhase {
	switch {
	case s.IsRejected:
		return StepRejected
	case s.IsApproved:
		return StepAdvanced
	case s.IsSkipped:
		return StepSkipped
	case s.IsSigned:
		return StepSigned
	default:
		return StepPending
	}
}
