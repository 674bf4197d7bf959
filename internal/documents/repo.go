package documents

import (
	"context"
	"time"
)

// Repo defines persistence operations for the document registry. The
// registry is the single source of truth for document status.
type Repo interface {
	Insert(ctx context.Context, doc Document) error
	FindByHash(ctx context.Context, ownerID, contentHash string) (Document, error)
	GetByID(ctx context.Context, id string) (Document, error)
	// UpdateStatus transitions a document out of processing. Implementations
	// only apply the update while the row is still in StatusProcessing, so
	// terminal states never revert.
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateMetadata(ctx context.Context, id string, patch MetadataPatch) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Document, error)
	// ListByStatus returns documents in the given status whose last update is
	// older than the cutoff, oldest first. Used by the readiness sweep.
	ListByStatus(ctx context.Context, status string, olderThan time.Time, limit int) ([]Document, error)
}
