package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/application/workflow"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/approval"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/shiftgrid"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

// memStore is an in-memory stand-in for every repository the services use.
// Values are copied on the way in and out so that unsaved edits never leak.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	docs       map[int64]entity.Document
	templates  map[int64]entity.ApprovalLineTemplate
	instances  map[int64]entity.ApprovalInstance
	shifts     map[int64]entity.ShiftEntry
	history    []entity.ApprovalHistory
	identities map[string]entity.Identity
	signatures map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		docs:       make(map[int64]entity.Document),
		templates:  make(map[int64]entity.ApprovalLineTemplate),
		instances:  make(map[int64]entity.ApprovalInstance),
		shifts:     make(map[int64]entity.ShiftEntry),
		identities: make(map[string]entity.Identity),
		signatures: make(map[string]string),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func cloneInstance(inst entity.ApprovalInstance) entity.ApprovalInstance {
	inst.Steps = append([]entity.StepInstance(nil), inst.Steps...)
	return inst
}

func cloneDocument(doc entity.Document) entity.Document {
	if doc.FormData != nil {
		fields := make(map[string]string, len(doc.FormData))
		for k, v := range doc.FormData {
			fields[k] = v
		}
		doc.FormData = fields
	}
	return doc
}

// documents

type memDocumentRepo struct{ *memStore }

func (r memDocumentRepo) Create(_ context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.ID = r.id()
	doc.Version = 1
	r.docs[doc.ID] = cloneDocument(*doc)
	return nil
}

func (r memDocumentRepo) GetByID(_ context.Context, id int64) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, apperr.NotFound("document %d", id)
	}
	out := cloneDocument(doc)
	return &out, nil
}

func (r memDocumentRepo) Update(_ context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.docs[doc.ID]
	if !ok {
		return apperr.NotFound("document %d", doc.ID)
	}
	if cur.Version != doc.Version {
		return apperr.StateConflict("document %d was modified concurrently", doc.ID)
	}
	doc.Version++
	doc.Status = cur.Status
	r.docs[doc.ID] = cloneDocument(*doc)
	return nil
}

func (r memDocumentRepo) UpdateStatus(_ context.Context, id int64, from, to domainwf.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.docs[id]
	if !ok {
		return apperr.NotFound("document %d", id)
	}
	if cur.Status != from {
		return apperr.StateConflict("document %d is %s, not %s", id, cur.Status, from)
	}
	cur.Status = to
	cur.Version++
	r.docs[id] = cur
	return nil
}

func (r memDocumentRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return apperr.NotFound("document %d", id)
	}
	delete(r.docs, id)
	return nil
}

func (r memDocumentRepo) List(_ context.Context, filter port.DocumentFilter) ([]*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Document
	for _, doc := range r.docs {
		if filter.Type != "" && doc.Type != filter.Type {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		d := cloneDocument(doc)
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// templates

type memTemplateRepo struct{ *memStore }

func (r memTemplateRepo) Create(_ context.Context, t *entity.ApprovalLineTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.id()
	r.templates[t.ID] = *t
	return nil
}

func (r memTemplateRepo) GetByID(_ context.Context, id int64) (*entity.ApprovalLineTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, apperr.NotFound("template %d", id)
	}
	t.Steps = append([]entity.StepDefinition(nil), t.Steps...)
	return &t, nil
}

func (r memTemplateRepo) ListByDocumentType(_ context.Context, docType entity.DocumentType) ([]*entity.ApprovalLineTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ApprovalLineTemplate
	for _, t := range r.templates {
		if docType == "" || t.DocumentType == docType {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTemplateRepo) Update(_ context.Context, t *entity.ApprovalLineTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[t.ID]; !ok {
		return apperr.NotFound("template %d", t.ID)
	}
	r.templates[t.ID] = *t
	return nil
}

func (r memTemplateRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[id]; !ok {
		return apperr.NotFound("template %d", id)
	}
	delete(r.templates, id)
	return nil
}

// instances

type memInstanceRepo struct{ *memStore }

func (r memInstanceRepo) Create(_ context.Context, inst *entity.ApprovalInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.instances {
		if cur.DocumentID == inst.DocumentID && cur.IsActive() {
			return apperr.StateConflict("document %d already has an active instance", inst.DocumentID)
		}
	}
	inst.ID = r.id()
	inst.Version = 1
	for i := range inst.Steps {
		inst.Steps[i].ID = r.id()
		inst.Steps[i].InstanceID = inst.ID
	}
	r.instances[inst.ID] = cloneInstance(*inst)
	return nil
}

func (r memInstanceRepo) GetByID(_ context.Context, id int64) (*entity.ApprovalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, apperr.NotFound("approval instance %d", id)
	}
	out := cloneInstance(inst)
	return &out, nil
}

func (r memInstanceRepo) GetActiveByDocument(_ context.Context, documentID int64) (*entity.ApprovalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.DocumentID == documentID && inst.IsActive() {
			out := cloneInstance(inst)
			return &out, nil
		}
	}
	return nil, apperr.NotFound("active approval instance for document %d", documentID)
}

func (r memInstanceRepo) ListByDocument(_ context.Context, documentID int64) ([]*entity.ApprovalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ApprovalInstance
	for _, inst := range r.instances {
		if inst.DocumentID == documentID {
			c := cloneInstance(inst)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memInstanceRepo) Save(_ context.Context, inst *entity.ApprovalInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.instances[inst.ID]
	if !ok {
		return apperr.NotFound("approval instance %d", inst.ID)
	}
	if cur.Version != inst.Version {
		return apperr.StateConflict("approval instance %d was modified concurrently", inst.ID)
	}
	inst.Version++
	r.instances[inst.ID] = cloneInstance(*inst)
	return nil
}

func (r memInstanceRepo) ListDocumentIDsByApprover(_ context.Context, approverID string) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int64]bool)
	var out []int64
	for _, inst := range r.instances {
		for _, s := range inst.Steps {
			if s.ResolvedApproverID == approverID && !seen[inst.DocumentID] {
				seen[inst.DocumentID] = true
				out = append(out, inst.DocumentID)
			}
		}
	}
	return out, nil
}

// shift entries

type memShiftRepo struct{ *memStore }

func (r memShiftRepo) Create(_ context.Context, e *entity.ShiftEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.id()
	r.shifts[e.ID] = *e
	return nil
}

func (r memShiftRepo) GetByID(_ context.Context, id int64) (*entity.ShiftEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.shifts[id]
	if !ok {
		return nil, apperr.NotFound("shift entry %d", id)
	}
	return &e, nil
}

func (r memShiftRepo) ListByDocument(_ context.Context, documentID int64) ([]entity.ShiftEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.ShiftEntry
	for _, e := range r.shifts {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	shiftgrid.SortEntries(out)
	return out, nil
}

func (r memShiftRepo) Update(_ context.Context, e *entity.ShiftEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shifts[e.ID]; !ok {
		return apperr.NotFound("shift entry %d", e.ID)
	}
	r.shifts[e.ID] = *e
	return nil
}

func (r memShiftRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shifts[id]; !ok {
		return apperr.NotFound("shift entry %d", id)
	}
	delete(r.shifts, id)
	return nil
}

func (r memShiftRepo) DeleteByDocument(_ context.Context, documentID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.shifts {
		if e.DocumentID == documentID {
			delete(r.shifts, id)
		}
	}
	return nil
}

// history

type memHistoryRepo struct{ *memStore }

func (r memHistoryRepo) Create(_ context.Context, h *entity.ApprovalHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.ID = r.id()
	r.history = append(r.history, *h)
	return nil
}

func (r memHistoryRepo) ListByDocument(_ context.Context, documentID int64) ([]*entity.ApprovalHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ApprovalHistory
	for _, h := range r.history {
		if h.DocumentID == documentID {
			h := h
			out = append(out, &h)
		}
	}
	return out, nil
}

func (m *memStore) actions(documentID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, h := range m.history {
		if h.DocumentID == documentID {
			out = append(out, h.ActionType)
		}
	}
	return out
}

// identities and signatures

type memIdentityRepo struct{ *memStore }

func (r memIdentityRepo) ListByRole(_ context.Context, q approval.RoleQuery) ([]entity.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Identity
	for _, ident := range r.identities {
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
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memIdentityRepo) GetIdentity(_ context.Context, id string) (*entity.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.identities[id]
	if !ok {
		return nil, apperr.NotFound("identity %s", id)
	}
	return &ident, nil
}

func (r memIdentityRepo) Upsert(_ context.Context, ident *entity.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.identities[ident.ID]; ok && ident.SignatureKey == "" {
		ident.SignatureKey = cur.SignatureKey
	}
	r.identities[ident.ID] = *ident
	return nil
}

func (r memIdentityRepo) SetSignatureKey(_ context.Context, id, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.identities[id]
	if !ok {
		return apperr.NotFound("identity %s", id)
	}
	ident.SignatureKey = key
	r.identities[id] = ident
	return nil
}

func (r memIdentityRepo) List(_ context.Context) ([]entity.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.Identity, 0, len(r.identities))
	for _, ident := range r.identities {
		out = append(out, ident)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memSignatureStore struct{ *memStore }

func (s memSignatureStore) GetSignatureImage(_ context.Context, identityID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signatures[identityID], nil
}

func (s memSignatureStore) PutSignatureImage(_ context.Context, identityID string, image io.Reader, _ string) (string, error) {
	if _, err := io.ReadAll(image); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := "sig/" + identityID
	s.signatures[identityID] = ref
	return ref, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type nopServiceLogger struct{}

func (nopServiceLogger) Info(string, ...interface{})  {}
func (nopServiceLogger) Warn(string, ...interface{})  {}
func (nopServiceLogger) Error(string, ...interface{}) {}

type fakeCalendar struct {
	holidays []shiftgrid.Holiday
	err      error
}

func (c fakeCalendar) ListHolidays(context.Context, int) ([]shiftgrid.Holiday, error) {
	return c.holidays, c.err
}

type fakeExporter struct {
	rows int
}

func (e *fakeExporter) Export(_ context.Context, _ *entity.Document, entries []entity.ShiftEntry, _ []shiftgrid.DayColumn, w io.Writer) error {
	e.rows = len(entries)
	_, err := w.Write([]byte("xlsx"))
	return err
}

func (*fakeExporter) ContentType() string { return "application/test" }
func (*fakeExporter) Extension() string   { return ".test" }

// fixture wires every service over one memStore with the real engine and dispatcher
type fixture struct {
	store     *memStore
	now       time.Time
	templates TemplateService
	approvals ApprovalService
	documents DocumentService
	schedules ScheduleService
	identity  IdentityService
	exporter  *fakeExporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	docs := memDocumentRepo{store}
	history := memHistoryRepo{store}
	idents := memIdentityRepo{store}
	sigs := memSignatureStore{store}
	tx := passthroughTx{}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	disp := dispatcher.NewDispatcher()
	engine := workflow.NewEngine(docs, history, tx, workflow.WithDispatcher(disp), workflow.WithClock(clock))
	policy := workflow.VisibilityPolicy{AdminRoles: []string{"HR_STAFF"}}

	f := &fixture{store: store, now: now, exporter: &fakeExporter{}}
	f.templates = NewTemplateService(memTemplateRepo{store}, tx, nopServiceLogger{})

	approvals := NewApprovalService(docs, memTemplateRepo{store}, memInstanceRepo{store}, history, idents, sigs, engine, tx, disp, nopServiceLogger{})
	approvals.(*approvalServiceImpl).now = clock
	f.approvals = approvals

	documents := NewDocumentService(docs, memInstanceRepo{store}, memShiftRepo{store}, history, idents, sigs, engine, tx, disp, policy, nopServiceLogger{})
	documents.(*documentServiceImpl).now = clock
	f.documents = documents

	schedules := NewScheduleService(documents, docs, memShiftRepo{store}, history, idents, sigs,
		fakeCalendar{holidays: []shiftgrid.Holiday{{Month: 3, Day: 1, Name: "Independence Day"}}},
		f.exporter, tx, disp, ScheduleOptions{DefaultNightDutyRequired: 4}, nopServiceLogger{})
	schedules.(*scheduleServiceImpl).now = clock
	f.schedules = schedules

	f.identity = NewIdentityService(idents, sigs, tx, nopServiceLogger{})

	f.addIdentity(entity.Identity{ID: "admin", Name: "Admin", DeptCode: "OPS", Active: true})
	f.addIdentity(entity.Identity{ID: "emp", Name: "Employee", DeptCode: "OPS", Active: true})
	f.addIdentity(entity.Identity{ID: "head", Name: "Head", DeptCode: "OPS", Roles: []string{"DEPARTMENT_HEAD"}, Active: true})
	f.addIdentity(entity.Identity{ID: "dir", Name: "Director", DeptCode: "HQ", Roles: []string{"CENTER_DIRECTOR"}, Active: true})
	f.addIdentity(entity.Identity{ID: "hr", Name: "HR", DeptCode: "HQ", Roles: []string{"HR_STAFF"}, Active: true})
	for _, id := range []string{"admin", "emp", "head", "dir"} {
		store.signatures[id] = "sig/" + id
	}
	return f
}

func (f *fixture) addIdentity(ident entity.Identity) {
	f.store.identities[ident.ID] = ident
}

func (f *fixture) status(t *testing.T, id int64) domainwf.State {
	t.Helper()
	doc, ok := f.store.docs[id]
	if !ok {
		t.Fatalf("document %d not found", id)
	}
	return doc.Status
}

// twoStepTemplate creates a department head then center director line
func (f *fixture) twoStepTemplate(t *testing.T, docType entity.DocumentType) int64 {
	t.Helper()
	tmpl, err := f.templates.CreateTemplate(context.Background(), "admin", &entity.ApprovalLineTemplate{
		Name:         "standard",
		DocumentType: docType,
		Steps: []entity.StepDefinition{
			{StepOrder: 1, StepName: "Head", ApproverType: entity.ApproverDepartmentHead},
			{StepOrder: 2, StepName: "Director", ApproverType: entity.ApproverCenterDirector, IsFinalApprovalAvailable: true},
		},
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tmpl.ID
}
