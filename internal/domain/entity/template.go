package entity

import "time"

// DocumentType identifies which document family a template or document belongs to
type DocumentType string

const (
	DocumentTypeContract     DocumentType = "CONTRACT"
	DocumentTypeWorkSchedule DocumentType = "WORK_SCHEDULE"
)

// IsValid returns true for a known document type
func (t DocumentType) IsValid() bool {
	return t == DocumentTypeContract || t == DocumentTypeWorkSchedule
}

// ApproverType selects how a step's approver is resolved at confirmation time
type ApproverType string

const (
	ApproverSpecificUser   ApproverType = "SPECIFIC_USER"
	ApproverSubstitute     ApproverType = "SUBSTITUTE"
	ApproverJobLevel       ApproverType = "JOB_LEVEL"
	ApproverDepartmentHead ApproverType = "DEPARTMENT_HEAD"
	ApproverHRStaff        ApproverType = "HR_STAFF"
	ApproverCenterDirector ApproverType = "CENTER_DIRECTOR"
	ApproverAdminDirector  ApproverType = "ADMIN_DIRECTOR"
	ApproverCEODirector    ApproverType = "CEO_DIRECTOR"
)

var validApproverTypes = map[ApproverType]bool{
	ApproverSpecificUser:   true,
	ApproverSubstitute:     true,
	ApproverJobLevel:       true,
	ApproverDepartmentHead: true,
	ApproverHRStaff:        true,
	ApproverCenterDirector: true,
	ApproverAdminDirector:  true,
	ApproverCEODirector:    true,
}

// IsValid returns true for a known approver type
func (t ApproverType) IsValid() bool {
	return validApproverTypes[t]
}

// ApprovalLineTemplate is a reusable, ordered definition of review steps for one document type.
// Editing a template only affects instances confirmed afterwards.
type ApprovalLineTemplate struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	DocumentType DocumentType     `json:"document_type"`
	OwnerID      string           `json:"owner_id"`
	Steps        []StepDefinition `json:"steps"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// StepDefinition is one reviewer slot of a template.
// CanSkip is stored and returned but has no runtime effect.
type StepDefinition struct {
	StepOrder                int          `json:"step_order" yaml:"step_order"`
	StepName                 string       `json:"step_name" yaml:"step_name"`
	ApproverType             ApproverType `json:"approver_type" yaml:"approver_type"`
	ApproverID               string       `json:"approver_id,omitempty" yaml:"approver_id,omitempty"`
	JobLevel                 string       `json:"job_level,omitempty" yaml:"job_level,omitempty"`
	DeptCode                 string       `json:"dept_code,omitempty" yaml:"dept_code,omitempty"`
	IsOptional               bool         `json:"is_optional" yaml:"is_optional"`
	CanSkip                  bool         `json:"can_skip" yaml:"can_skip"`
	IsFinalApprovalAvailable bool         `json:"is_final_approval_available" yaml:"is_final_approval_available"`
}
