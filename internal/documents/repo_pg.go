package documents

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
)

const documentColumns = `id, owner_id, title, file_name, mime_type, size_bytes, content_hash, blob_key, external_file_ref, external_index_ref, scope_tag, authority_tag, status, created_at, updated_at`

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Insert creates a new document row. The unique (owner_id, content_hash)
// index backs the dedup invariant.
func (r *PGRepo) Insert(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id,
    owner_id,
    title,
    file_name,
    mime_type,
    size_bytes,
    content_hash,
    blob_key,
    external_file_ref,
    external_index_ref,
    scope_tag,
    authority_tag,
    status,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.OwnerID,
		doc.Title,
		doc.FileName,
		doc.MimeType,
		doc.SizeBytes,
		doc.ContentHash,
		doc.BlobKey,
		doc.ExternalFileRef,
		doc.ExternalIndexRef,
		doc.ScopeTag,
		doc.AuthorityTag,
		doc.Status,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// FindByHash returns the document for an (owner, content hash) pair.
func (r *PGRepo) FindByHash(ctx context.Context, ownerID, contentHash string) (Document, error) {
	query := `
SELECT ` + documentColumns + `
FROM documents
WHERE owner_id = $1 AND content_hash = $2
LIMIT 1`
	return r.queryOne(ctx, query, ownerID, contentHash)
}

// GetByID fetches a document by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Document, error) {
	query := `
SELECT ` + documentColumns + `
FROM documents
WHERE id = $1
LIMIT 1`
	return r.queryOne(ctx, query, id)
}

// UpdateStatus moves a processing document to a terminal status. The status
// guard in the WHERE clause keeps terminal states from reverting; updating an
// already-terminal row affects zero rows and is not an error.
func (r *PGRepo) UpdateStatus(ctx context.Context, id, status string) error {
	const query = `
UPDATE documents
SET status = $2, updated_at = $3
WHERE id = $1 AND status = '` + StatusProcessing + `'`
	_, err := r.DB.ExecContext(ctx, query, id, status, time.Now().UTC())
	return err
}

// UpdateMetadata applies non-nil patch fields.
func (r *PGRepo) UpdateMetadata(ctx context.Context, id string, patch MetadataPatch) error {
	if patch.Empty() {
		return nil
	}

	sets := []string{}
	args := []any{id}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if patch.Title != nil {
		sets = append(sets, "title = "+arg(*patch.Title))
	}
	if patch.ScopeTag != nil {
		sets = append(sets, "scope_tag = "+arg(*patch.ScopeTag))
	}
	if patch.AuthorityTag != nil {
		sets = append(sets, "authority_tag = "+arg(*patch.AuthorityTag))
	}
	sets = append(sets, "updated_at = "+arg(time.Now().UTC()))

	query := "UPDATE documents SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document row.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner lists an owner's documents, newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `
SELECT ` + documentColumns + `
FROM documents
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	return r.queryMany(ctx, query, ownerID, limit, offset)
}

// ListByStatus lists documents in a status older than a cutoff, oldest first.
func (r *PGRepo) ListByStatus(ctx context.Context, status string, olderThan time.Time, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT ` + documentColumns + `
FROM documents
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at ASC
LIMIT $3`
	return r.queryMany(ctx, query, status, olderThan, limit)
}

func (r *PGRepo) queryOne(ctx context.Context, query string, args ...any) (Document, error) {
	var doc Document
	err := scanDocument(r.DB.QueryRowContext(ctx, query, args...).Scan, &doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

func (r *PGRepo) queryMany(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		if err := scanDocument(rows.Scan, &doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func scanDocument(scan func(dest ...any) error, doc *Document) error {
	return scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Title,
		&doc.FileName,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.ContentHash,
		&doc.BlobKey,
		&doc.ExternalFileRef,
		&doc.ExternalIndexRef,
		&doc.ScopeTag,
		&doc.AuthorityTag,
		&doc.Status,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
}

var _ Repo = (*PGRepo)(nil)
