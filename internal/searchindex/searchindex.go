package searchindex

import (
	"context"
	"errors"
)

// ProbeResult classifies a readiness signal from the document index.
type ProbeResult string

const (
	ProbeReady    ProbeResult = "ready"
	ProbeNotReady ProbeResult = "not_ready"
	ProbeFailed   ProbeResult = "failed"
)

// Message is one turn of a chat conversation forwarded to the QA service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Citation points at a supporting passage behind an answer.
type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet,omitempty"`
	Page    int    `json:"page,omitempty"`
}

// Answer is the QA service's response to a question.
type Answer struct {
	Text      string
	Citations []Citation
}

// Client abstracts the hosted document-index and QA service. Implementations
// own any API versioning concerns; callers see a single code path.
type Client interface {
	// SubmitFile uploads raw bytes for asynchronous extraction and embedding
	// and returns the index's file reference.
	SubmitFile(ctx context.Context, fileName string, data []byte) (string, error)
	// AttachToPartition registers a submitted file into a searchable
	// partition and returns the registration reference.
	AttachToPartition(ctx context.Context, fileRef, partitionID string) (string, error)
	// ProbeSearchable issues a minimal file-scoped query against the
	// partition. A successful hit is the proxy for "content is searchable".
	ProbeSearchable(ctx context.Context, partitionID, fileRef string) (ProbeResult, error)
	// FileStatus reports the raw processing state of a submitted file,
	// independent of partition attachment.
	FileStatus(ctx context.Context, fileRef string) (ProbeResult, error)
	// DeleteFile removes a file from the index's file store.
	DeleteFile(ctx context.Context, fileRef string) error
	// Ask forwards a question with conversation history to the QA service
	// scoped to a partition.
	Ask(ctx context.Context, partitionID string, messages []Message, maxPassages int) (Answer, error)
}

// ErrNotConfigured is returned by the placeholder client.
var ErrNotConfigured = errors.New("document index not configured")

// PlaceholderClient is a stub implementation used when no index service is
// configured.
type PlaceholderClient struct{}

func (PlaceholderClient) SubmitFile(ctx context.Context, fileName string, data []byte) (string, error) {
	return "", ErrNotConfigured
}

func (PlaceholderClient) AttachToPartition(ctx context.Context, fileRef, partitionID string) (string, error) {
	return "", ErrNotConfigured
}

func (PlaceholderClient) ProbeSearchable(ctx context.Context, partitionID, fileRef string) (ProbeResult, error) {
	return ProbeFailed, ErrNotConfigured
}

func (PlaceholderClient) FileStatus(ctx context.Context, fileRef string) (ProbeResult, error) {
	return ProbeFailed, ErrNotConfigured
}

func (PlaceholderClient) DeleteFile(ctx context.Context, fileRef string) error {
	return ErrNotConfigured
}

func (PlaceholderClient) Ask(ctx context.Context, partitionID string, messages []Message, maxPassages int) (Answer, error) {
	return Answer{}, ErrNotConfigured
}

var _ Client = PlaceholderClient{}
