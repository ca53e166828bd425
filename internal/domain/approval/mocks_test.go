package approval

import (
	"context"

	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

type mockDirectory struct {
	identities []entity.Identity
	listCalls  []RoleQuery
}

func (m *mockDirectory) ListByRole(ctx context.Context, q RoleQuery) ([]entity.Identity, error) {
	m.listCalls = append(m.listCalls, q)
	var out []entity.Identity
	for _, ident := range m.identities {
		if q.Role != "" && !ident.HasRole(q.Role) {
			continue
		}
		if q.JobLevel != "" && ident.JobLevel != q.JobLevel {
			continue
		}
		if q.DeptCode != "" && ident.DeptCode != q.DeptCode {
			continue
		}
		out = append(out, ident)
	}
	return out, nil
}

func (m *mockDirectory) GetIdentity(ctx context.Context, id string) (*entity.Identity, error) {
	for i := range m.identities {
		if m.identities[i].ID == id {
			ident := m.identities[i]
			return &ident, nil
		}
	}
	return nil, apperr.NotFound("identity %s", id)
}

func person(id, dept string, roles ...string) entity.Identity {
	return entity.Identity{ID: id, Name: "Name " + id, DeptCode: dept, Roles: roles, Active: true}
}

func orgDirectory() *mockDirectory {
	return &mockDirectory{identities: []entity.Identity{
		person("head-icu", "ICU", "DEPARTMENT_HEAD"),
		person("head-er", "ER", "DEPARTMENT_HEAD"),
		person("hr-1", "HR", "HR_STAFF"),
		person("hr-2", "HR", "HR_STAFF"),
		person("ceo", "EXEC", "CEO_DIRECTOR"),
		person("nurse-1", "ICU"),
		{ID: "gone", Name: "Left", DeptCode: "ICU", Active: false},
		{ID: "lead-1", Name: "Lead 1", DeptCode: "ICU", JobLevel: "L5", Active: true},
		{ID: "lead-2", Name: "Lead 2", DeptCode: "ER", JobLevel: "L5", Active: true},
	}}
}
