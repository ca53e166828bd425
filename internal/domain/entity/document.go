package entity

import (
	"time"

	"github.com/garyjia/docflow/internal/domain/workflow"
)

// Document is a contract or a monthly work schedule.
// Contract-only and schedule-only fields are left zero for the other type.
type Document struct {
	ID              int64          `json:"id"`
	Type            DocumentType   `json:"type"`
	Title           string         `json:"title"`
	CreatorID       string         `json:"creator_id"`
	CreatorDeptCode string         `json:"creator_dept_code,omitempty"`
	Status          workflow.State `json:"status"`
	Version         int            `json:"version"`

	// Contract
	EmployeeID           string            `json:"employee_id,omitempty"`
	FormData             map[string]string `json:"form_data,omitempty"`
	EmployeeSignatureRef string            `json:"employee_signature_ref,omitempty"`
	EmployeeSignedAt     *time.Time        `json:"employee_signed_at,omitempty"`

	// Work schedule
	Year                int        `json:"year,omitempty"`
	Month               int        `json:"month,omitempty"`
	CreatorSignatureRef string     `json:"creator_signature_ref,omitempty"`
	CreatorSignedAt     *time.Time `json:"creator_signed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCreatorSignature reports whether the schedule's creator sign-off is captured
func (d *Document) HasCreatorSignature() bool {
	return d.CreatorSignatureRef != ""
}

// IsCreator reports whether actorID created the document
func (d *Document) IsCreator(actorID string) bool {
	return actorID != "" && d.CreatorID == actorID
}
