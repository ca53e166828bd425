package event

// Type identifies the type of domain event
type Type string

const (
	TypeDocumentSubmitted     Type = "document.submitted"
	TypeStepSigned            Type = "step.signed"
	TypeStepApproved          Type = "step.approved"
	TypeInstanceCompleted     Type = "instance.completed"
	TypeInstanceRejected      Type = "instance.rejected"
	TypeFinalApprovalOverride Type = "instance.final_approval_override"
	TypeEmployeeSigned        Type = "contract.employee_signed"
	TypeReturnedToAdmin       Type = "contract.returned_to_admin"
	TypeScheduleRevised       Type = "schedule.revised"
	TypePatternWarning        Type = "schedule.pattern_warning"
	TypeStatusChanged         Type = "document.status_changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeDocumentSubmitted,
		TypeStepSigned,
		TypeStepApproved,
		TypeInstanceCompleted,
		TypeInstanceRejected,
		TypeFinalApprovalOverride,
		TypeEmployeeSigned,
		TypeReturnedToAdmin,
		TypeScheduleRevised,
		TypePatternWarning,
		TypeStatusChanged:
		return true
	default:
		return false
	}
}
