package workflow

import (
	"github.com/garyjia/docflow/internal/domain/entity"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

// VisibilityPolicy names who counts as an organizational admin
type VisibilityPolicy struct {
	AdminRoles     []string
	AdminJobLevels []string
}

// IsAdmin reports whether the identity's role or job level qualifies as admin
func (p VisibilityPolicy) IsAdmin(viewer *entity.Identity) bool {
	if viewer == nil {
		return false
	}
	for _, role := range p.AdminRoles {
		if viewer.HasRole(role) {
			return true
		}
	}
	for _, level := range p.AdminJobLevels {
		if level != "" && viewer.JobLevel == level {
			return true
		}
	}
	return false
}

// CanView decides whether viewer may read doc. approverIDs are the resolved
// approvers of any instance of the document, active or retired.
//
// Drafts are private to the creator. Contracts in employee-facing states are
// visible to the creator, the named employee and the line's approvers; a completed
// contract is also visible to admins. Submitted work schedules are visible to the
// creator, the approvers and admins.
func CanView(doc *entity.Document, viewer *entity.Identity, approverIDs []string, policy VisibilityPolicy) bool {
	if doc == nil || viewer == nil || viewer.ID == "" {
		return false
	}
	if doc.IsCreator(viewer.ID) {
		return true
	}
	if doc.Status == domainwf.StateDraft {
		return false
	}

	isApprover := contains(approverIDs, viewer.ID)

	switch doc.Type {
	case entity.DocumentTypeContract:
		if viewer.ID == doc.EmployeeID {
			return true
		}
		if doc.Status == domainwf.StateCompleted && policy.IsAdmin(viewer) {
			return true
		}
		return isApprover
	case entity.DocumentTypeWorkSchedule:
		return isApprover || policy.IsAdmin(viewer)
	default:
		return false
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
