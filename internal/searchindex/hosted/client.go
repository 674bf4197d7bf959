package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"auditdocs-backend/internal/searchindex"
)

const defaultTimeout = 60 * time.Second

// Client implements searchindex.Client against the hosted index service's
// REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs a hosted index client.
func New(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("INDEX_API_URL is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("INDEX_API_KEY is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type fileResponse struct {
	FileID string `json:"file_id"`
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type attachRequest struct {
	FileID string `json:"file_id"`
}

type attachResponse struct {
	IndexRef string `json:"index_ref"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type retrieveRequest struct {
	Query  string `json:"query"`
	FileID string `json:"file_id,omitempty"`
	TopK   int    `json:"top_k"`
}

type retrieveResponse struct {
	Results []struct {
		Text string `json:"text"`
	} `json:"results"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type chatRequest struct {
	Messages    []searchindex.Message `json:"messages"`
	MaxPassages int                   `json:"max_passages"`
}

type chatResponse struct {
	Text      string                 `json:"text"`
	Citations []searchindex.Citation `json:"citations"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// SubmitFile uploads raw bytes as a multipart form and returns the file
// reference assigned by the index.
func (c *Client) SubmitFile(ctx context.Context, fileName string, data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var out fileResponse
	if _, err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("index submit file: %w", err)
	}
	if out.FileID == "" {
		return "", fmt.Errorf("index submit file: empty file_id in response")
	}
	return out.FileID, nil
}

// AttachToPartition registers a submitted file into a partition.
func (c *Client) AttachToPartition(ctx context.Context, fileRef, partitionID string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/partitions/%s/files", c.baseURL, url.PathEscape(partitionID))
	var out attachResponse
	if _, err := c.postJSON(ctx, endpoint, attachRequest{FileID: fileRef}, &out); err != nil {
		return "", fmt.Errorf("index attach file: %w", err)
	}
	if out.IndexRef == "" {
		return "", fmt.Errorf("index attach file: empty index_ref in response")
	}
	return out.IndexRef, nil
}

// ProbeSearchable issues a minimal file-scoped retrieval query. A hit means
// the file's content has been chunked and embedded; an empty result or a 404
// means it is not searchable yet.
func (c *Client) ProbeSearchable(ctx context.Context, partitionID, fileRef string) (searchindex.ProbeResult, error) {
	endpoint := fmt.Sprintf("%s/v1/partitions/%s/retrieve", c.baseURL, url.PathEscape(partitionID))
	var out retrieveResponse
	status, err := c.postJSON(ctx, endpoint, retrieveRequest{Query: "*", FileID: fileRef, TopK: 1}, &out)
	if err != nil {
		if status == http.StatusNotFound || status == http.StatusConflict {
			return searchindex.ProbeNotReady, nil
		}
		return searchindex.ProbeNotReady, fmt.Errorf("index probe: %w", err)
	}
	if len(out.Results) == 0 {
		return searchindex.ProbeNotReady, nil
	}
	return searchindex.ProbeReady, nil
}

// FileStatus reports the raw processing state of a submitted file.
func (c *Client) FileStatus(ctx context.Context, fileRef string) (searchindex.ProbeResult, error) {
	endpoint := fmt.Sprintf("%s/v1/files/%s", c.baseURL, url.PathEscape(fileRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return searchindex.ProbeNotReady, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var out fileResponse
	if _, err := c.do(req, &out); err != nil {
		return searchindex.ProbeNotReady, fmt.Errorf("index file status: %w", err)
	}
	switch strings.ToLower(out.Status) {
	case "ready", "completed", "indexed":
		return searchindex.ProbeReady, nil
	case "failed", "error":
		return searchindex.ProbeFailed, nil
	default:
		return searchindex.ProbeNotReady, nil
	}
}

// DeleteFile removes a file from the index's file store. A missing file is
// not an error.
func (c *Client) DeleteFile(ctx context.Context, fileRef string) error {
	endpoint := fmt.Sprintf("%s/v1/files/%s", c.baseURL, url.PathEscape(fileRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	status, err := c.do(req, nil)
	if err != nil && status != http.StatusNotFound {
		return fmt.Errorf("index delete file: %w", err)
	}
	return nil
}

// Ask forwards a question with history to the partition-scoped QA endpoint.
func (c *Client) Ask(ctx context.Context, partitionID string, messages []searchindex.Message, maxPassages int) (searchindex.Answer, error) {
	endpoint := fmt.Sprintf("%s/v1/partitions/%s/chat", c.baseURL, url.PathEscape(partitionID))
	var out chatResponse
	if _, err := c.postJSON(ctx, endpoint, chatRequest{Messages: messages, MaxPassages: maxPassages}, &out); err != nil {
		return searchindex.Answer{}, fmt.Errorf("index chat: %w", err)
	}
	return searchindex.Answer{Text: out.Text, Citations: out.Citations}, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) (int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.do(req, out)
}

// do executes the request and decodes the JSON body into out when provided.
// Non-2xx statuses become errors carrying the service's error message.
func (c *Client) do(req *http.Request, out any) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("http status %d: %s", resp.StatusCode, serviceErrorMessage(body))
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func serviceErrorMessage(body []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

var _ searchindex.Client = (*Client)(nil)
