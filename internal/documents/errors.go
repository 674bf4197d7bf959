package documents

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorage marks a blob-store failure. Ingestion aborts before any
	// registry row exists, so resubmission is always safe.
	ErrStorage = errors.New("storage failure")
	// ErrIndex marks a fatal external-index failure.
	ErrIndex = errors.New("index failure")
)

const (
	ErrorCodeValidation = "validation_error"
	ErrorCodeNotFound   = "not_found"
	ErrorCodeStorage    = "storage_error"
	ErrorCodeIndex      = "index_error"
	ErrorCodeInternal   = "internal_error"
)
