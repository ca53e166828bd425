package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

const (
	// maxSignatureBytes caps uploaded signature images
	maxSignatureBytes = 2 << 20
	// appendPosition is past the end of any template
	appendPosition = 1 << 20
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	templates  service.TemplateService
	approvals  service.ApprovalService
	documents  service.DocumentService
	schedules  service.ScheduleService
	identities service.IdentityService
	health     func() bool
	logger     Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, health func() bool, logger Logger) *Handlers {
	return &Handlers{
		templates:  services.Templates,
		approvals:  services.Approvals,
		documents:  services.Documents,
		schedules:  services.Schedules,
		identities: services.Identities,
		health:     health,
		logger:     logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// statusFor maps the error taxonomy to an HTTP status and a stable code
func statusFor(err error) (int, string) {
	switch apperr.Kind(err) {
	case apperr.ErrValidation:
		return http.StatusBadRequest, "validation"
	case apperr.ErrUnauthorized:
		return http.StatusForbidden, "unauthorized"
	case apperr.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case apperr.ErrStateConflict:
		return http.StatusConflict, "state_conflict"
	case apperr.ErrPrecondition:
		return http.StatusUnprocessableEntity, "precondition"
	case apperr.ErrSelectionRequired:
		return http.StatusUnprocessableEntity, "selection_required"
	case apperr.ErrNoCandidatesFound:
		return http.StatusUnprocessableEntity, "no_candidates"
	case apperr.ErrUnresolvedApprover:
		return http.StatusUnprocessableEntity, "unresolved_approver"
	case apperr.ErrEmptyApprovalLine:
		return http.StatusUnprocessableEntity, "empty_approval_line"
	case apperr.ErrCorrupted:
		return http.StatusInternalServerError, "corrupted"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "path", c.FullPath(), "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error", Code: code})
		return
	}
	c.JSON(status, Response{Success: false, Error: err.Error(), Code: code})
}

func (h *Handlers) ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func (h *Handlers) created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Code: "validation"})
}

func actorOf(c *gin.Context) string {
	return c.GetHeader(ActorHeader)
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if h.health != nil && !h.health() {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   "1.0.0",
	})
}

// templateRequest is the body of template create and update
type templateRequest struct {
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	DocumentType entity.DocumentType     `json:"document_type"`
	Steps        []entity.StepDefinition `json:"steps"`
}

func (r templateRequest) toEntity() *entity.ApprovalLineTemplate {
	return &entity.ApprovalLineTemplate{
		Name:         r.Name,
		Description:  r.Description,
		DocumentType: r.DocumentType,
		Steps:        r.Steps,
	}
}

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.templates.CreateTemplate(c.Request.Context(), actorOf(c), req.toEntity())
	if err != nil {
		h.fail(c, "Failed to create template", err)
		return
	}
	h.created(c, t)
}

// ListTemplates handles GET /api/templates?document_type=
func (h *Handlers) ListTemplates(c *gin.Context) {
	docType := entity.DocumentType(c.Query("document_type"))
	list, err := h.templates.ListTemplates(c.Request.Context(), docType)
	if err != nil {
		h.fail(c, "Failed to list templates", err)
		return
	}
	h.ok(c, list)
}

// GetTemplate handles GET /api/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	t, err := h.templates.GetTemplate(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get template", err)
		return
	}
	h.ok(c, t)
}

// UpdateTemplate handles PUT /api/templates/:id
func (h *Handlers) UpdateTemplate(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req templateRequest
	if !bindJSON(c, &req) {
		return
	}
	t := req.toEntity()
	t.ID = id
	updated, err := h.templates.UpdateTemplate(c.Request.Context(), actorOf(c), t)
	if err != nil {
		h.fail(c, "Failed to update template", err)
		return
	}
	h.ok(c, updated)
}

// DeleteTemplate handles DELETE /api/templates/:id
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.templates.DeleteTemplate(c.Request.Context(), actorOf(c), id); err != nil {
		h.fail(c, "Failed to delete template", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addStepRequest struct {
	// At is the 1-based insert position; 0 appends
	At   int                   `json:"at"`
	Step entity.StepDefinition `json:"step"`
}

// AddTemplateStep handles POST /api/templates/:id/steps
func (h *Handlers) AddTemplateStep(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req addStepRequest
	if !bindJSON(c, &req) {
		return
	}
	at := req.At
	if at == 0 {
		at = appendPosition
	}
	t, err := h.templates.AddStep(c.Request.Context(), actorOf(c), id, at, req.Step)
	if err != nil {
		h.fail(c, "Failed to add template step", err)
		return
	}
	h.ok(c, t)
}

// RemoveTemplateStep handles DELETE /api/templates/:id/steps/:order
func (h *Handlers) RemoveTemplateStep(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	order, ok := intParam(c, "order")
	if !ok {
		return
	}
	t, err := h.templates.RemoveStep(c.Request.Context(), actorOf(c), id, order)
	if err != nil {
		h.fail(c, "Failed to remove template step", err)
		return
	}
	h.ok(c, t)
}

type moveStepRequest struct {
	To int `json:"to"`
}

// MoveTemplateStep handles POST /api/templates/:id/steps/:order/move
func (h *Handlers) MoveTemplateStep(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	order, ok := intParam(c, "order")
	if !ok {
		return
	}
	var req moveStepRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.templates.MoveStep(c.Request.Context(), actorOf(c), id, order, req.To)
	if err != nil {
		h.fail(c, "Failed to move template step", err)
		return
	}
	h.ok(c, t)
}

type resolveRequest struct {
	DocumentID int64 `json:"document_id"`
}

// ResolveTemplate handles POST /api/templates/:id/resolve.
// It previews the candidates of every step for a document owned by the actor.
func (h *Handlers) ResolveTemplate(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req resolveRequest
	if !bindJSON(c, &req) {
		return
	}
	line, err := h.approvals.PreviewLine(c.Request.Context(), actorOf(c), id, req.DocumentID)
	if err != nil {
		h.fail(c, "Failed to resolve template", err)
		return
	}
	h.ok(c, line)
}

// ListIdentities handles GET /api/identities
func (h *Handlers) ListIdentities(c *gin.Context) {
	list, err := h.identities.List(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list identities", err)
		return
	}
	h.ok(c, list)
}

// GetIdentity handles GET /api/identities/:id
func (h *Handlers) GetIdentity(c *gin.Context) {
	ident, err := h.identities.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get identity", err)
		return
	}
	h.ok(c, ident)
}

// UploadSignature handles PUT /api/identities/:id/signature.
// The body is the raw image; Content-Type names its format.
func (h *Handlers) UploadSignature(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxSignatureBytes)
	key, err := h.identities.UploadSignature(c.Request.Context(), actorOf(c), c.Param("id"), body, c.ContentType())
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, Response{Success: false, Error: "signature image too large", Code: "validation"})
			return
		}
		h.fail(c, "Failed to upload signature", err)
		return
	}
	h.ok(c, gin.H{"signature_key": key})
}
