package documents

import "time"

// Document lifecycle statuses. A document is created in StatusProcessing and
// moves exactly once, to StatusReady or StatusFailed.
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Document is the registry record for an uploaded audit document.
type Document struct {
	ID               string
	OwnerID          string
	Title            string
	FileName         string
	MimeType         string
	SizeBytes        int64
	ContentHash      string
	BlobKey          string
	ExternalFileRef  string
	ExternalIndexRef string
	ScopeTag         string
	AuthorityTag     string
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Terminal reports whether the document's status can no longer change.
func (d Document) Terminal() bool {
	return d.Status == StatusReady || d.Status == StatusFailed
}

// MetadataPatch carries the mutable fields of a document. Nil means "leave
// unchanged".
type MetadataPatch struct {
	Title        *string
	ScopeTag     *string
	AuthorityTag *string
}

// Empty reports whether the patch changes nothing.
func (p MetadataPatch) Empty() bool {
	return p.Title == nil && p.ScopeTag == nil && p.AuthorityTag == nil
}
