package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"auditdocs-backend/internal/searchindex"
	"auditdocs-backend/internal/shared/metrics"
	"auditdocs-backend/internal/shared/storage/object"
	"auditdocs-backend/internal/shared/telemetry"
	"auditdocs-backend/internal/shared/util"
)

// Spawner launches a detached readiness reconciliation for a document.
type Spawner interface {
	Spawn(docID string)
}

// Service contains the document ingestion pipeline and its surrounding
// business logic.
type Service struct {
	Repo        Repo
	Store       object.ObjectStore
	Index       searchindex.Client
	PartitionID string
	// Reconciler receives fire-and-forget readiness checks after bulk
	// ingestion. Optional; nil skips the fan-out.
	Reconciler Spawner
}

// IngestInput carries one file plus its metadata through the pipeline.
type IngestInput struct {
	OwnerID      string
	FileName     string
	Title        string
	MimeType     string
	ScopeTag     string
	AuthorityTag string
	Data         []byte
}

// Ingest runs the pipeline: hash, dedup, blob upload, index registration,
// registry insert. The returned bool is true when a new row was created;
// resubmitting identical bytes for the same owner returns the existing
// document with no side effects.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (Document, bool, error) {
	if in.OwnerID == "" || in.FileName == "" || len(in.Data) == 0 {
		return Document{}, false, fmt.Errorf("%w: owner, file name and content are required", ErrInvalidInput)
	}
	metrics.IncIngestStarted()
	started := metrics.NowMillis()

	contentHash := util.HashContent(in.Data)

	existing, err := s.Repo.FindByHash(ctx, in.OwnerID, contentHash)
	if err == nil {
		metrics.IncIngestDuplicate()
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		metrics.IncIngestFailed()
		return Document{}, false, err
	}

	mimeType := strings.TrimSpace(in.MimeType)
	if mimeType == "" {
		sniffLen := len(in.Data)
		if sniffLen > 512 {
			sniffLen = 512
		}
		mimeType = http.DetectContentType(in.Data[:sniffLen])
	}

	ext := util.ResolveExtension(in.FileName, mimeType)
	blobKey := util.HashUserKey(in.OwnerID) + "/" + contentHash + ext

	size, err := s.Store.Put(ctx, blobKey, mimeType, bytes.NewReader(in.Data))
	if err != nil {
		metrics.IncIngestFailed()
		return Document{}, false, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	fileRef, err := s.Index.SubmitFile(ctx, in.FileName, in.Data)
	if err != nil {
		metrics.IncIngestFailed()
		return Document{}, false, fmt.Errorf("%w: %v", ErrIndex, err)
	}

	// Partition attachment is best effort: the file already lives in the
	// index's file store and a later sweep can re-attach it.
	indexRef, err := s.Index.AttachToPartition(ctx, fileRef, s.PartitionID)
	if err != nil {
		telemetry.Error("ingest.attach_failed", map[string]any{
			"owner_id":     in.OwnerID,
			"file_ref":     fileRef,
			"partition_id": s.PartitionID,
			"err":          err.Error(),
		})
		indexRef = ""
	}

	now := time.Now().UTC()
	doc := Document{
		ID:               uuid.NewString(),
		OwnerID:          in.OwnerID,
		Title:            defaultTitle(in.Title, in.FileName),
		FileName:         in.FileName,
		MimeType:         mimeType,
		SizeBytes:        size,
		ContentHash:      contentHash,
		BlobKey:          blobKey,
		ExternalFileRef:  fileRef,
		ExternalIndexRef: indexRef,
		ScopeTag:         in.ScopeTag,
		AuthorityTag:     in.AuthorityTag,
		Status:           StatusProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.Repo.Insert(ctx, doc); err != nil {
		// The external file is now orphaned; the registry never saw it, so a
		// resubmission starts clean.
		telemetry.Error("ingest.insert_failed", map[string]any{
			"owner_id": in.OwnerID,
			"file_ref": fileRef,
			"err":      err.Error(),
		})
		metrics.IncIngestFailed()
		return Document{}, false, fmt.Errorf("%w: registry insert: %v", ErrIndex, err)
	}

	metrics.IncIngestCreated()
	metrics.ObserveIngestDurationMs(metrics.NowMillis() - started)
	telemetry.Info("ingest.created", map[string]any{
		"document_id": doc.ID,
		"owner_id":    doc.OwnerID,
		"size_bytes":  doc.SizeBytes,
		"file_ref":    doc.ExternalFileRef,
	})
	return doc, true, nil
}

// SharedMetadata is the metadata template applied to every file of a batch.
type SharedMetadata struct {
	ScopeTag     string
	AuthorityTag string
}

// BatchFile is one file submitted through bulk ingestion.
type BatchFile struct {
	FileName string
	Title    string
	MimeType string
	Data     []byte
}

// BatchFileResult is the per-file outcome of bulk ingestion.
type BatchFileResult struct {
	FileName   string `json:"fileName"`
	DocumentID string `json:"documentId,omitempty"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchSummary aggregates the per-file results.
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BatchResult is the outcome of one bulk ingestion call.
type BatchResult struct {
	Results []BatchFileResult `json:"results"`
	Summary BatchSummary      `json:"summary"`
}

// IngestBatch drives the pipeline over a batch of files sharing one metadata
// template. Files run sequentially in input order; one failure never aborts
// the rest. Newly created documents get a fire-and-forget readiness check.
func (s *Service) IngestBatch(ctx context.Context, ownerID string, meta SharedMetadata, files []BatchFile) (BatchResult, error) {
	if ownerID == "" {
		return BatchResult{}, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if strings.TrimSpace(meta.ScopeTag) == "" || strings.TrimSpace(meta.AuthorityTag) == "" {
		return BatchResult{}, fmt.Errorf("%w: scope and authority are required for bulk ingestion", ErrInvalidInput)
	}
	if len(files) == 0 {
		return BatchResult{}, fmt.Errorf("%w: at least one file is required", ErrInvalidInput)
	}

	result := BatchResult{
		Results: make([]BatchFileResult, 0, len(files)),
		Summary: BatchSummary{Total: len(files)},
	}
	var created []string

	for _, file := range files {
		doc, isNew, err := s.Ingest(ctx, IngestInput{
			OwnerID:      ownerID,
			FileName:     file.FileName,
			Title:        file.Title,
			MimeType:     file.MimeType,
			ScopeTag:     meta.ScopeTag,
			AuthorityTag: meta.AuthorityTag,
			Data:         file.Data,
		})
		if err != nil {
			result.Results = append(result.Results, BatchFileResult{
				FileName: file.FileName,
				Error:    err.Error(),
			})
			result.Summary.Failed++
			continue
		}
		result.Results = append(result.Results, BatchFileResult{
			FileName:   file.FileName,
			DocumentID: doc.ID,
			Duplicate:  !isNew,
		})
		result.Summary.Successful++
		if isNew {
			created = append(created, doc.ID)
		}
	}

	if s.Reconciler != nil {
		for _, id := range created {
			s.Reconciler.Spawn(id)
		}
	}

	return result, nil
}

// GetOwned returns a document when it belongs to the caller. Non-owned
// documents read as not found so existence is never leaked.
func (s *Service) GetOwned(ctx context.Context, ownerID, id string) (Document, error) {
	doc, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.OwnerID != ownerID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// List returns the caller's documents.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Document, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	return s.Repo.ListByOwner(ctx, ownerID, limit, offset)
}

// UpdateMetadata edits title/scope/authority on an owned document. Status is
// untouched.
func (s *Service) UpdateMetadata(ctx context.Context, ownerID, id string, patch MetadataPatch) (Document, error) {
	if patch.Empty() {
		return Document{}, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if _, err := s.GetOwned(ctx, ownerID, id); err != nil {
		return Document{}, err
	}
	if err := s.Repo.UpdateMetadata(ctx, id, patch); err != nil {
		return Document{}, err
	}
	return s.Repo.GetByID(ctx, id)
}

// Delete removes the registry row synchronously, then cleans up the blob and
// the external file in a detached best-effort task. The registry deletion is
// authoritative; cleanup failures never undo it.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := s.GetOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}

	go s.cleanup(doc)
	return nil
}

// cleanup removes the blob and external file left behind by a deleted
// document. Runs detached from the request.
func (s *Service) cleanup(doc Document) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if doc.BlobKey != "" {
		if err := s.Store.Delete(ctx, doc.BlobKey); err != nil {
			telemetry.Error("delete.blob_cleanup_failed", map[string]any{
				"document_id": doc.ID,
				"blob_key":    doc.BlobKey,
				"err":         err.Error(),
			})
		}
	}
	if doc.ExternalFileRef != "" {
		if err := s.Index.DeleteFile(ctx, doc.ExternalFileRef); err != nil {
			telemetry.Error("delete.index_cleanup_failed", map[string]any{
				"document_id": doc.ID,
				"file_ref":    doc.ExternalFileRef,
				"err":         err.Error(),
			})
		}
	}
}

func defaultTitle(title, fileName string) string {
	if trimmed := strings.TrimSpace(title); trimmed != "" {
		return trimmed
	}
	return fileName
}
