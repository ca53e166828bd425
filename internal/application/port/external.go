package port

import (
	"context"
	"io"
	"time"

	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/shiftgrid"
)

// SignatureStore resolves an identity's stored signature image
type SignatureStore interface {
	// GetSignatureImage returns a reference to the identity's signature image,
	// or "" when the identity has none stored
	GetSignatureImage(ctx context.Context, identityID string) (string, error)
	// PutSignatureImage stores a new signature image for the identity and returns its reference
	PutSignatureImage(ctx context.Context, identityID string, image io.Reader, contentType string) (string, error)
}

// BlobStorage stores binary objects under keys
type BlobStorage interface {
	Save(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// HolidayCalendar lists public holidays; used for grid styling only
type HolidayCalendar interface {
	ListHolidays(ctx context.Context, year int) ([]shiftgrid.Holiday, error)
}

// ScheduleExporter renders a schedule grid into a file format
type ScheduleExporter interface {
	Export(ctx context.Context, doc *entity.Document, entries []entity.ShiftEntry, columns []shiftgrid.DayColumn, w io.Writer) error
	ContentType() string
	Extension() string
}
