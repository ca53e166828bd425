package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

// Approver is the resolution strategy of one step. The concrete types below
// are the only implementations.
type Approver interface {
	approver()
}

// SpecificUser names the approver directly
type SpecificUser struct {
	ID string
}

// Substitute is picked by the document owner at submission time
type Substitute struct{}

// ByJobLevel matches every identity at a job level
type ByJobLevel struct {
	Level       string
	DeptCode    string
	PreferredID string
}

// ByRole matches every identity holding an organizational role.
// OwnerScoped limits the search to the document owner's department when DeptCode is empty.
type ByRole struct {
	Role        string
	DeptCode    string
	OwnerScoped bool
	PreferredID string
}

func (SpecificUser) approver() {}
func (Substitute) approver()   {}
func (ByJobLevel) approver()   {}
func (ByRole) approver()       {}

// ApproverOf converts a stored step definition into its strategy
func ApproverOf(def entity.StepDefinition) (Approver, error) {
	switch def.ApproverType {
	case entity.ApproverSpecificUser:
		return SpecificUser{ID: def.ApproverID}, nil
	case entity.ApproverSubstitute:
		return Substitute{}, nil
	case entity.ApproverJobLevel:
		return ByJobLevel{Level: def.JobLevel, DeptCode: def.DeptCode, PreferredID: def.ApproverID}, nil
	case entity.ApproverDepartmentHead:
		return ByRole{Role: string(def.ApproverType), DeptCode: def.DeptCode, OwnerScoped: true, PreferredID: def.ApproverID}, nil
	case entity.ApproverHRStaff, entity.ApproverCenterDirector, entity.ApproverAdminDirector, entity.ApproverCEODirector:
		return ByRole{Role: string(def.ApproverType), DeptCode: def.DeptCode, PreferredID: def.ApproverID}, nil
	default:
		return nil, apperr.Validation("step %d: unknown approver type %q", def.StepOrder, def.ApproverType)
	}
}

// RoleQuery is a directory search. Empty fields do not filter.
type RoleQuery struct {
	Role     string
	JobLevel string
	DeptCode string
}

// Directory is the organization directory the resolver reads from.
// GetIdentity returns an error wrapping apperr.ErrNotFound for unknown ids.
type Directory interface {
	ListByRole(ctx context.Context, q RoleQuery) ([]entity.Identity, error)
	GetIdentity(ctx context.Context, id string) (*entity.Identity, error)
}

// DocumentContext is what the resolver knows about the document being submitted
type DocumentContext struct {
	DocumentID    int64
	DocumentType  entity.DocumentType
	OwnerID       string
	OwnerDeptCode string
}

// Resolution is the outcome of resolving one step
type Resolution struct {
	StepOrder  int               `json:"step_order"`
	StepName   string            `json:"step_name"`
	Candidates []entity.Identity `json:"candidates,omitempty"`
	// ManualPick means the owner must supply any directory identity
	ManualPick bool `json:"manual_pick"`
	// Problem is set by ResolveTemplate when the step could not be resolved
	Problem string `json:"problem,omitempty"`
}

// Single returns the resolved identity when no choice is left to the owner
func (r Resolution) Single() (entity.Identity, bool) {
	if r.ManualPick || len(r.Candidates) != 1 {
		return entity.Identity{}, false
	}
	return r.Candidates[0], true
}

// Resolver expands step definitions into concrete identities
type Resolver struct {
	directory Directory
}

// NewResolver creates a resolver backed by the directory
func NewResolver(directory Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve resolves one step. It never writes anything.
func (r *Resolver) Resolve(ctx context.Context, def entity.StepDefinition, doc DocumentContext) (Resolution, error) {
	strategy, err := ApproverOf(def)
	if err != nil {
		return Resolution{}, err
	}

	base := Resolution{StepOrder: def.StepOrder, StepName: def.StepName}

	switch a := strategy.(type) {
	case SpecificUser:
		ident, err := r.lookup(ctx, a.ID)
		if err != nil {
			return Resolution{}, fmt.Errorf("step %d: %w", def.StepOrder, err)
		}
		base.Candidates = []entity.Identity{*ident}
		return base, nil

	case Substitute:
		base.ManualPick = true
		return base, nil

	case ByJobLevel:
		if a.Level == "" {
			// no level recorded: the designer's choice is the only candidate
			ident, err := r.lookup(ctx, a.PreferredID)
			if err != nil {
				return Resolution{}, fmt.Errorf("step %d: %w", def.StepOrder, err)
			}
			base.Candidates = []entity.Identity{*ident}
			return base, nil
		}
		return r.candidates(ctx, base, RoleQuery{JobLevel: a.Level, DeptCode: a.DeptCode}, a.PreferredID)

	case ByRole:
		scope := a.DeptCode
		if scope == "" && a.OwnerScoped {
			scope = doc.OwnerDeptCode
		}
		return r.candidates(ctx, base, RoleQuery{Role: a.Role, DeptCode: scope}, a.PreferredID)

	default:
		return Resolution{}, apperr.Validation("step %d: unsupported approver strategy %T", def.StepOrder, strategy)
	}
}

// ResolveTemplate previews every step of a template. Resolution failures are
// reported per step instead of aborting the preview.
func (r *Resolver) ResolveTemplate(ctx context.Context, t *entity.ApprovalLineTemplate, doc DocumentContext) ([]Resolution, error) {
	out := make([]Resolution, 0, len(t.Steps))
	for _, def := range Resequence(t.Steps) {
		res, err := r.Resolve(ctx, def, doc)
		if err != nil {
			if apperr.Kind(err) == nil {
				return nil, err
			}
			res = Resolution{StepOrder: def.StepOrder, StepName: def.StepName, Problem: err.Error()}
		}
		out = append(out, res)
	}
	return out, nil
}

// Pick validates the owner's choice for a resolution and returns the chosen identity.
// An empty pickID accepts the single candidate when there is one.
func (r *Resolver) Pick(ctx context.Context, res Resolution, pickID string) (entity.Identity, error) {
	if pickID == "" {
		if ident, ok := res.Single(); ok {
			return ident, nil
		}
		return entity.Identity{}, fmt.Errorf("%w: step %d has %d candidates", apperr.ErrSelectionRequired, res.StepOrder, len(res.Candidates))
	}

	if res.ManualPick {
		ident, err := r.lookup(ctx, pickID)
		if err != nil {
			return entity.Identity{}, fmt.Errorf("step %d: %w", res.StepOrder, err)
		}
		return *ident, nil
	}

	for _, c := range res.Candidates {
		if c.ID == pickID {
			return c, nil
		}
	}
	return entity.Identity{}, apperr.Validation("step %d: %s is not a candidate", res.StepOrder, pickID)
}

func (r *Resolver) lookup(ctx context.Context, id string) (*entity.Identity, error) {
	ident, err := r.directory.GetIdentity(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: identity %s no longer exists", apperr.ErrUnresolvedApprover, id)
		}
		return nil, fmt.Errorf("get identity %s: %w", id, err)
	}
	if !ident.Active {
		return nil, fmt.Errorf("%w: identity %s is inactive", apperr.ErrUnresolvedApprover, id)
	}
	return ident, nil
}

func (r *Resolver) candidates(ctx context.Context, base Resolution, q RoleQuery, preferredID string) (Resolution, error) {
	found, err := r.directory.ListByRole(ctx, q)
	if err != nil {
		return Resolution{}, fmt.Errorf("step %d: list by role: %w", base.StepOrder, err)
	}

	active := make([]entity.Identity, 0, len(found))
	for _, ident := range found {
		if ident.Active {
			active = append(active, ident)
		}
	}
	if len(active) == 0 {
		return Resolution{}, fmt.Errorf("%w: step %d (role=%q level=%q dept=%q)", apperr.ErrNoCandidatesFound, base.StepOrder, q.Role, q.JobLevel, q.DeptCode)
	}

	for _, ident := range active {
		if preferredID != "" && ident.ID == preferredID {
			base.Candidates = []entity.Identity{ident}
			return base, nil
		}
	}

	base.Candidates = active
	return base, nil
}
