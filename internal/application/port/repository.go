package port

import (
	"context"

	"github.com/garyjia/docflow/internal/domain/approval"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
)

// Repositories return errors wrapping apperr.ErrNotFound for missing rows and
// apperr.ErrStateConflict when an optimistic version or status check loses a race.

// TemplateRepository defines persistence operations for ApprovalLineTemplate
type TemplateRepository interface {
	Create(ctx context.Context, t *entity.ApprovalLineTemplate) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalLineTemplate, error)
	// ListByDocumentType lists templates of one type; an empty type lists all
	ListByDocumentType(ctx context.Context, docType entity.DocumentType) ([]*entity.ApprovalLineTemplate, error)
	// Update replaces the header and the whole step list
	Update(ctx context.Context, t *entity.ApprovalLineTemplate) error
	Delete(ctx context.Context, id int64) error
}

// InstanceRepository defines persistence operations for ApprovalInstance and its steps
type InstanceRepository interface {
	// Create inserts the instance and its steps
	Create(ctx context.Context, inst *entity.ApprovalInstance) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error)
	// GetActiveByDocument returns the active instance or an ErrNotFound error
	GetActiveByDocument(ctx context.Context, documentID int64) (*entity.ApprovalInstance, error)
	// ListByDocument returns every instance of a document, newest first
	ListByDocument(ctx context.Context, documentID int64) ([]*entity.ApprovalInstance, error)
	// Save writes status and step flags if the stored version still matches, then bumps it
	Save(ctx context.Context, inst *entity.ApprovalInstance) error
	// ListDocumentIDsByApprover returns documents where the identity is a resolved approver
	ListDocumentIDsByApprover(ctx context.Context, approverID string) ([]int64, error)
}

// DocumentFilter narrows DocumentRepository.List
type DocumentFilter struct {
	Type   entity.DocumentType
	Status workflow.State
	Limit  int
	Offset int
}

// DocumentRepository defines persistence operations for Document
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id int64) (*entity.Document, error)
	// Update writes the body and signature fields if the stored version matches, then bumps it
	Update(ctx context.Context, doc *entity.Document) error
	// UpdateStatus moves the status only if it still equals from
	UpdateStatus(ctx context.Context, id int64, from, to workflow.State) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter DocumentFilter) ([]*entity.Document, error)
}

// ShiftEntryRepository defines persistence operations for ShiftEntry
type ShiftEntryRepository interface {
	Create(ctx context.Context, e *entity.ShiftEntry) error
	GetByID(ctx context.Context, id int64) (*entity.ShiftEntry, error)
	ListByDocument(ctx context.Context, documentID int64) ([]entity.ShiftEntry, error)
	Update(ctx context.Context, e *entity.ShiftEntry) error
	Delete(ctx context.Context, id int64) error
	DeleteByDocument(ctx context.Context, documentID int64) error
}

// IdentityRepository is the local directory
type IdentityRepository interface {
	approval.Directory
	Upsert(ctx context.Context, ident *entity.Identity) error
	SetSignatureKey(ctx context.Context, id, key string) error
	List(ctx context.Context) ([]entity.Identity, error)
}

// HistoryRepository defines persistence operations for ApprovalHistory
type HistoryRepository interface {
	Create(ctx context.Context, h *entity.ApprovalHistory) error
	ListByDocument(ctx context.Context, documentID int64) ([]*entity.ApprovalHistory, error)
}

// TransactionManager defines transaction management operations.
// Nested calls run inside the outer transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
