package workflow

// State represents a coarse document status in one of the document lifecycles
type State string

// Work schedule lifecycle
const (
	StateDraft     State = "DRAFT"
	StateSubmitted State = "SUBMITTED"
	StateReviewed  State = "REVIEWED"
	StateApproved  State = "APPROVED"
	StateRejected  State = "REJECTED"
)

// Contract lifecycle (shares StateDraft)
const (
	StateSentToEmployee   State = "SENT_TO_EMPLOYEE"
	StateSignedByEmployee State = "SIGNED_BY_EMPLOYEE"
	StateReturnedToAdmin  State = "RETURNED_TO_ADMIN"
	StateCompleted        State = "COMPLETED"
)

var validStates = map[State]bool{
	StateDraft:            true,
	StateSubmitted:        true,
	StateReviewed:         true,
	StateApproved:         true,
	StateRejected:         true,
	StateSentToEmployee:   true,
	StateSignedByEmployee: true,
	StateReturnedToAdmin:  true,
	StateCompleted:        true,
}

var terminalStates = map[State]bool{
	StateApproved:  true,
	StateCompleted: true,
}

// editableStates are the states in which the creator may still mutate the document body
var editableStates = map[State]bool{
	StateDraft:           true,
	StateReturnedToAdmin: true,
}

// IsTerminal returns true if the state is final (no further transitions allowed).
// REJECTED is not terminal: a rejected schedule can be revised and resubmitted.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsEditable returns true if the document body may be changed by its creator
func (s State) IsEditable() bool {
	return editableStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known document state
func (s State) IsValid() bool {
	return validStates[s]
}
