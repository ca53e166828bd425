package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
)

type createContractRequest struct {
	Title      string            `json:"title"`
	EmployeeID string            `json:"employee_id"`
	Fields     map[string]string `json:"fields"`
}

type createScheduleRequest struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	Month int    `json:"month"`
}

type updateFieldsRequest struct {
	Title      *string           `json:"title"`
	EmployeeID *string           `json:"employee_id"`
	Fields     map[string]string `json:"fields"`
}

type submitRequest struct {
	TemplateID int64 `json:"template_id"`
	// Inclusion and Picks are keyed by the template step order
	Inclusion map[int]bool   `json:"inclusion"`
	Picks     map[int]string `json:"picks"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// ApprovalResponse is the approval state of a document
type ApprovalResponse struct {
	Active    *entity.ApprovalInstance   `json:"active,omitempty"`
	Instances []*entity.ApprovalInstance `json:"instances"`
}

// CreateContract handles POST /api/documents/contracts
func (h *Handlers) CreateContract(c *gin.Context) {
	var req createContractRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documents.CreateContract(c.Request.Context(), service.CreateContractRequest{
		ActorID:    actorOf(c),
		Title:      req.Title,
		EmployeeID: req.EmployeeID,
		Fields:     req.Fields,
	})
	if err != nil {
		h.fail(c, "Failed to create contract", err)
		return
	}
	h.created(c, doc)
}

// CreateSchedule handles POST /api/documents/schedules
func (h *Handlers) CreateSchedule(c *gin.Context) {
	var req createScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documents.CreateWorkSchedule(c.Request.Context(), service.CreateScheduleRequest{
		ActorID: actorOf(c),
		Title:   req.Title,
		Year:    req.Year,
		Month:   req.Month,
	})
	if err != nil {
		h.fail(c, "Failed to create schedule", err)
		return
	}
	h.created(c, doc)
}

// ListDocuments handles GET /api/documents?type=&status=&limit=&offset=
func (h *Handlers) ListDocuments(c *gin.Context) {
	filter := port.DocumentFilter{
		Type:   entity.DocumentType(c.Query("type")),
		Status: workflow.State(c.Query("status")),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "invalid offset")
			return
		}
		filter.Offset = n
	}

	docs, err := h.documents.ListVisible(c.Request.Context(), actorOf(c), filter)
	if err != nil {
		h.fail(c, "Failed to list documents", err)
		return
	}
	h.ok(c, docs)
}

// GetDocument handles GET /api/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.fail(c, "Failed to get document", err)
		return
	}
	h.ok(c, doc)
}

// DeleteDocument handles DELETE /api/documents/:id
func (h *Handlers) DeleteDocument(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.documents.Delete(c.Request.Context(), id, actorOf(c)); err != nil {
		h.fail(c, "Failed to delete document", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateContractFields handles PUT /api/documents/:id/fields
func (h *Handlers) UpdateContractFields(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req updateFieldsRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documents.UpdateContractFields(c.Request.Context(), id, actorOf(c), req.Title, req.EmployeeID, req.Fields)
	if err != nil {
		h.fail(c, "Failed to update contract", err)
		return
	}
	h.ok(c, doc)
}

// DocumentHistory handles GET /api/documents/:id/history
func (h *Handlers) DocumentHistory(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	history, err := h.documents.History(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.fail(c, "Failed to get history", err)
		return
	}
	h.ok(c, history)
}

// Submit handles POST /api/documents/:id/submit
func (h *Handlers) Submit(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req submitRequest
	if !bindJSON(c, &req) {
		return
	}
	inst, err := h.approvals.Submit(c.Request.Context(), service.SubmitRequest{
		DocumentID: id,
		ActorID:    actorOf(c),
		TemplateID: req.TemplateID,
		Inclusion:  req.Inclusion,
		Picks:      req.Picks,
	})
	if err != nil {
		h.fail(c, "Failed to submit document", err)
		return
	}
	h.created(c, inst)
}

// visible loads the document as the actor to enforce read visibility
func (h *Handlers) visible(c *gin.Context) (int64, bool) {
	id, ok := int64Param(c, "id")
	if !ok {
		return 0, false
	}
	if _, err := h.documents.Get(c.Request.Context(), id, actorOf(c)); err != nil {
		h.fail(c, "Failed to get document", err)
		return 0, false
	}
	return id, true
}

// GetApproval handles GET /api/documents/:id/approval
func (h *Handlers) GetApproval(c *gin.Context) {
	id, ok := h.visible(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	instances, err := h.approvals.ListInstances(ctx, id)
	if err != nil {
		h.fail(c, "Failed to list approval instances", err)
		return
	}
	resp := ApprovalResponse{Instances: instances}

	active, err := h.approvals.GetActiveInstance(ctx, id)
	switch {
	case err == nil:
		resp.Active = active
	case apperr.Kind(err) != apperr.ErrNotFound:
		h.fail(c, "Failed to get active instance", err)
		return
	}
	h.ok(c, resp)
}

// GetCurrentStep handles GET /api/documents/:id/current-step
func (h *Handlers) GetCurrentStep(c *gin.Context) {
	id, ok := h.visible(c)
	if !ok {
		return
	}
	step, err := h.approvals.GetCurrentStep(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get current step", err)
		return
	}
	h.ok(c, step)
}

func (h *Handlers) stepAction(c *gin.Context, msg string, act func(id int64, order int) (*entity.ApprovalInstance, error)) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	order, ok := intParam(c, "order")
	if !ok {
		return
	}
	inst, err := act(id, order)
	if err != nil {
		h.fail(c, msg, err)
		return
	}
	h.ok(c, inst)
}

// SignStep handles POST /api/documents/:id/steps/:order/sign
func (h *Handlers) SignStep(c *gin.Context) {
	h.stepAction(c, "Failed to sign step", func(id int64, order int) (*entity.ApprovalInstance, error) {
		return h.approvals.SignStep(c.Request.Context(), id, order, actorOf(c))
	})
}

// UnsignStep handles POST /api/documents/:id/steps/:order/unsign
func (h *Handlers) UnsignStep(c *gin.Context) {
	h.stepAction(c, "Failed to unsign step", func(id int64, order int) (*entity.ApprovalInstance, error) {
		return h.approvals.UnsignStep(c.Request.Context(), id, order, actorOf(c))
	})
}

// Approve handles POST /api/documents/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	inst, err := h.approvals.ApproveStep(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.fail(c, "Failed to approve step", err)
		return
	}
	h.ok(c, inst)
}

// Reject handles POST /api/documents/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	inst, err := h.approvals.RejectStep(c.Request.Context(), id, actorOf(c), req.Reason)
	if err != nil {
		h.fail(c, "Failed to reject step", err)
		return
	}
	h.ok(c, inst)
}

// FinalApprove handles POST /api/documents/:id/final-approve
func (h *Handlers) FinalApprove(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	inst, err := h.approvals.FinalApprove(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.fail(c, "Failed to final-approve document", err)
		return
	}
	h.ok(c, inst)
}

// EmployeeSign handles POST /api/documents/:id/employee-sign
func (h *Handlers) EmployeeSign(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	doc, err := h.documents.EmployeeSign(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.fail(c, "Failed to record employee signature", err)
		return
	}
	h.ok(c, doc)
}

// ReturnToAdmin handles POST /api/documents/:id/return
func (h *Handlers) ReturnToAdmin(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	doc, err := h.documents.ReturnToAdmin(c.Request.Context(), id, actorOf(c), req.Reason)
	if err != nil {
		h.fail(c, "Failed to return contract", err)
		return
	}
	h.ok(c, doc)
}

// Revise handles POST /api/documents/:id/revise
func (h *Handlers) Revise(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	doc, err := h.documents.Revise(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.fail(c, "Failed to revise document", err)
		return
	}
	h.ok(c, doc)
}
