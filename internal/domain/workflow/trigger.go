package workflow

// Trigger represents an event that can cause a document status transition
type Trigger string

const (
	// Work schedule
	TriggerSubmit  Trigger = "SUBMIT"
	TriggerReview  Trigger = "REVIEW"
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
	TriggerRevise  Trigger = "REVISE"

	// Contract
	TriggerSend         Trigger = "SEND"
	TriggerEmployeeSign Trigger = "EMPLOYEE_SIGN"
	TriggerComplete     Trigger = "COMPLETE"
	TriggerReturn       Trigger = "RETURN"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
