package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"auditdocs-backend/internal/searchindex"
)

const (
	defaultMaxHistory  = 10
	defaultMaxPassages = 5

	// fallbackAnswer is returned when the QA service produced no usable text.
	fallbackAnswer = "I could not find an answer in the indexed documents."
)

var (
	ErrQuestionRequired = errors.New("question is required")
	// ErrNotConfigured means no index partition has been set up for chat.
	ErrNotConfigured = errors.New("chat index partition not configured")
	// ErrUpstream wraps a QA service failure.
	ErrUpstream = errors.New("chat upstream failure")
)

// Service proxies questions to the hosted QA-over-index service. It holds no
// conversation state; the caller supplies the history each time.
type Service struct {
	Index       searchindex.Client
	PartitionID string
	MaxHistory  int
	MaxPassages int
}

// Reply is the normalized answer returned to the caller.
type Reply struct {
	Answer    string                 `json:"answer"`
	Citations []searchindex.Citation `json:"citations"`
}

// Answer forwards the question plus a bounded window of history and
// normalizes the response.
func (s *Service) Answer(ctx context.Context, question string, history []searchindex.Message) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, ErrQuestionRequired
	}
	if strings.TrimSpace(s.PartitionID) == "" {
		return Reply{}, ErrNotConfigured
	}

	maxHistory := s.MaxHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	maxPassages := s.MaxPassages
	if maxPassages <= 0 {
		maxPassages = defaultMaxPassages
	}

	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	messages := make([]searchindex.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, searchindex.Message{Role: "user", Content: question})

	answer, err := s.Index.Ask(ctx, s.PartitionID, messages, maxPassages)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	text := strings.TrimSpace(answer.Text)
	if text == "" {
		text = fallbackAnswer
	}
	citations := answer.Citations
	if citations == nil {
		citations = []searchindex.Citation{}
	}
	return Reply{Answer: text, Citations: citations}, nil
}
