package entity

import "time"

// ApprovalHistory is the audit trail of a document's workflow
type ApprovalHistory struct {
	ID             int64     `json:"id"`
	DocumentID     int64     `json:"document_id"`
	InstanceID     int64     `json:"instance_id,omitempty"`
	ActorID        string    `json:"actor_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	ActionType     string    `json:"action_type"`
	ActionData     string    `json:"action_data,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Action type constants
const (
	ActionSubmit                = "SUBMIT"
	ActionSign                  = "SIGN"
	ActionUnsign                = "UNSIGN"
	ActionApprove               = "APPROVE"
	ActionReject                = "REJECT"
	ActionFinalApprovalOverride = "FINAL_APPROVAL_OVERRIDE"
	ActionEmployeeSign          = "EMPLOYEE_SIGN"
	ActionReturn                = "RETURN"
	ActionRevise                = "REVISE"
	ActionStatusChange          = "STATUS_CHANGE"
	ActionCreatorSign           = "CREATOR_SIGN"
	ActionCreatorSignatureClear = "CREATOR_SIGNATURE_CLEARED"
)
