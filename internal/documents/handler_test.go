package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"auditdocs-backend/internal/searchindex"
)

func newTestRouter(t *testing.T, repo Repo, store *stubStore, index searchindex.Client) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := &Service{
		Repo:        repo,
		Store:       store,
		Index:       index,
		PartitionID: "part-1",
	}
	rec := NewReconciler(repo, index, "part-1", ReconcileConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	})
	rec.after = immediateAfter
	h := NewHandler(svc, rec)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if guest := c.GetHeader("X-Guest-Id"); guest != "" {
			c.Set("userId", "guest:"+guest)
		}
		c.Next()
	})
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func multipartUpload(t *testing.T, fields map[string]string, fileField, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	fw, err := w.CreateFormFile(fileField, fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func doRequest(r *gin.Engine, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Guest-Id", "test-guest")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHandlerIngestAndGet(t *testing.T) {
	repo := NewMemoryRepo()
	index := &stubIndex{}
	r := newTestRouter(t, repo, &stubStore{}, index)

	body, ct := multipartUpload(t, map[string]string{
		"title":     "Annual Audit",
		"scope":     "national",
		"authority": "supreme-audit",
	}, "file", "audit.txt", []byte("findings and recommendations"))

	resp := doRequest(r, http.MethodPost, "/api/v1/documents", body, ct)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var created struct {
		DocumentID string `json:"documentId"`
		Status     string `json:"status"`
		Duplicate  bool   `json:"duplicate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.DocumentID == "" || created.Status != StatusProcessing || created.Duplicate {
		t.Fatalf("unexpected create response %+v", created)
	}

	respGet := doRequest(r, http.MethodGet, "/api/v1/documents/"+created.DocumentID, nil, "")
	if respGet.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", respGet.Code)
	}
	var got DocumentResponse
	if err := json.NewDecoder(respGet.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != "Annual Audit" || got.FileName != "audit.txt" {
		t.Fatalf("unexpected document %+v", got)
	}
}

func TestHandlerIngestDuplicate(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestRouter(t, repo, &stubStore{}, &stubIndex{})

	content := []byte("same bytes")
	body, ct := multipartUpload(t, nil, "file", "a.txt", content)
	first := doRequest(r, http.MethodPost, "/api/v1/documents", body, ct)
	if first.Code != http.StatusOK {
		t.Fatalf("first upload: %d", first.Code)
	}

	body2, ct2 := multipartUpload(t, nil, "file", "b.txt", content)
	second := doRequest(r, http.MethodPost, "/api/v1/documents", body2, ct2)
	if second.Code != http.StatusOK {
		t.Fatalf("second upload: %d", second.Code)
	}
	var dup struct {
		Duplicate bool `json:"duplicate"`
	}
	if err := json.NewDecoder(second.Body).Decode(&dup); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !dup.Duplicate {
		t.Fatalf("expected duplicate flag on resubmission")
	}
}

func TestHandlerIngestMissingFile(t *testing.T) {
	r := newTestRouter(t, NewMemoryRepo(), &stubStore{}, &stubIndex{})

	body := bytes.NewBufferString("{}")
	resp := doRequest(r, http.MethodPost, "/api/v1/documents", body, "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "validation_error") {
		t.Fatalf("expected validation error body, got %s", resp.Body.String())
	}
}

func TestHandlerGetHidesForeignDocument(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestRouter(t, repo, &stubStore{}, &stubIndex{})

	seedProcessing(t, repo, "doc-foreign")

	resp := doRequest(r, http.MethodGet, "/api/v1/documents/doc-foreign", nil, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign document, got %d", resp.Code)
	}
}

func TestHandlerRecheckTerminalReturnsStatus(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestRouter(t, repo, &stubStore{}, &stubIndex{})

	now := time.Now().UTC()
	if err := repo.Insert(context.Background(), Document{
		ID:        "doc-ready",
		OwnerID:   "guest:test-guest",
		FileName:  "a.txt",
		Status:    StatusReady,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := doRequest(r, http.MethodPost, "/api/v1/documents/doc-ready/recheck", bytes.NewBuffer(nil), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for terminal document, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), StatusReady) {
		t.Fatalf("expected ready status in body, got %s", resp.Body.String())
	}
}

// blockingIndex parks probes until the test releases them, keeping the
// spawned reconciliation in flight across requests.
type blockingIndex struct {
	stubIndex
	release chan struct{}
}

func (b *blockingIndex) ProbeSearchable(ctx context.Context, partitionID, fileRef string) (searchindex.ProbeResult, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return searchindex.ProbeNotReady, nil
}

func TestHandlerRecheckProcessingAcceptsAndThrottles(t *testing.T) {
	repo := NewMemoryRepo()
	index := &blockingIndex{release: make(chan struct{})}
	t.Cleanup(func() { close(index.release) })
	r := newTestRouter(t, repo, &stubStore{}, index)

	now := time.Now().UTC()
	if err := repo.Insert(context.Background(), Document{
		ID:        "doc-proc",
		OwnerID:   "guest:test-guest",
		FileName:  "a.txt",
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	first := doRequest(r, http.MethodPost, "/api/v1/documents/doc-proc/recheck", bytes.NewBuffer(nil), "")
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", first.Code, first.Body.String())
	}
	var accepted struct {
		MaxAttempts int   `json:"maxAttempts"`
		BaseDelayMs int64 `json:"baseDelayMs"`
	}
	if err := json.NewDecoder(first.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if accepted.MaxAttempts != 3 {
		t.Fatalf("expected polling bounds in response, got %+v", accepted)
	}

	second := doRequest(r, http.MethodPost, "/api/v1/documents/doc-proc/recheck", bytes.NewBuffer(nil), "")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 within throttle window, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

// seedCallerProcessing inserts a processing document owned by the identity
// doRequest sends.
func seedCallerProcessing(t *testing.T, repo Repo, id string) {
	t.Helper()
	now := time.Now().UTC()
	if err := repo.Insert(context.Background(), Document{
		ID:              id,
		OwnerID:         "guest:test-guest",
		FileName:        id + ".txt",
		ContentHash:     "hash-" + id,
		ExternalFileRef: "ref-" + id,
		Status:          StatusProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestHandlerRecheckBulk(t *testing.T) {
	repo := NewMemoryRepo()
	index := &stubIndex{fileStatus: searchindex.ProbeReady, probeResult: searchindex.ProbeReady}
	r := newTestRouter(t, repo, &stubStore{}, index)

	seedCallerProcessing(t, repo, "doc-1")
	seedCallerProcessing(t, repo, "doc-2")

	payload, _ := json.Marshal(map[string]any{"documentIds": []string{"doc-1", "doc-2"}})
	resp := doRequest(r, http.MethodPost, "/api/v1/documents/recheck", bytes.NewBuffer(payload), "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result RecheckResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Statuses["doc-1"] != StatusReady || result.Statuses["doc-2"] != StatusReady {
		t.Fatalf("unexpected statuses %+v", result.Statuses)
	}
}

func TestHandlerRecheckBulkHidesForeignDocuments(t *testing.T) {
	repo := NewMemoryRepo()
	index := &stubIndex{fileStatus: searchindex.ProbeReady, probeResult: searchindex.ProbeReady}
	r := newTestRouter(t, repo, &stubStore{}, index)

	seedCallerProcessing(t, repo, "doc-mine")
	// Owned by someone else; the caller must not learn its status.
	seedProcessing(t, repo, "doc-foreign")

	payload, _ := json.Marshal(map[string]any{"documentIds": []string{"doc-mine", "doc-foreign", "doc-unknown"}})
	resp := doRequest(r, http.MethodPost, "/api/v1/documents/recheck", bytes.NewBuffer(payload), "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result RecheckResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Statuses["doc-mine"] != StatusReady {
		t.Fatalf("expected owned document rechecked, got %+v", result.Statuses)
	}
	if _, ok := result.Statuses["doc-foreign"]; ok {
		t.Fatalf("foreign document status leaked: %+v", result.Statuses)
	}
	if result.Errors["doc-foreign"] != "document not found" {
		t.Fatalf("expected not-found error for foreign id, got %+v", result.Errors)
	}
	if result.Errors["doc-unknown"] != "document not found" {
		t.Fatalf("expected not-found error for unknown id, got %+v", result.Errors)
	}

	foreign, err := repo.GetByID(context.Background(), "doc-foreign")
	if err != nil {
		t.Fatalf("load foreign: %v", err)
	}
	if foreign.Status != StatusProcessing {
		t.Fatalf("foreign document transitioned by non-owner: %s", foreign.Status)
	}
	index.mu.Lock()
	probed := index.probes
	index.mu.Unlock()
	if probed != 1 {
		t.Fatalf("expected a single probe for the owned document, got %d", probed)
	}
}

func TestHandlerBulkIngest(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestRouter(t, repo, &stubStore{}, &stubIndex{})

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, f := range []struct{ name, content string }{
		{"one.txt", "first file"},
		{"two.txt", "second file"},
	} {
		fw, err := w.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(f.content)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = w.WriteField("scope", "regional")
	_ = w.WriteField("authority", "court-of-accounts")
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	resp := doRequest(r, http.MethodPost, "/api/v1/documents/bulk", body, w.FormDataContentType())
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Summary.Successful != 2 || result.Summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}
}

func TestHandlerBulkIngestAppliesTitles(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestRouter(t, repo, &stubStore{}, &stubIndex{})

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, f := range []struct{ name, content string }{
		{"one.txt", "first file"},
		{"two.txt", "second file"},
	} {
		fw, err := w.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(f.content)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// One title per file part, in order; the second is omitted.
	_ = w.WriteField("titles", "Quarterly Findings")
	_ = w.WriteField("scope", "regional")
	_ = w.WriteField("authority", "court-of-accounts")
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	resp := doRequest(r, http.MethodPost, "/api/v1/documents/bulk", body, w.FormDataContentType())
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Summary.Successful != 2 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}

	first, err := repo.GetByID(context.Background(), result.Results[0].DocumentID)
	if err != nil {
		t.Fatalf("load first: %v", err)
	}
	if first.Title != "Quarterly Findings" {
		t.Fatalf("expected per-file title, got %q", first.Title)
	}
	second, err := repo.GetByID(context.Background(), result.Results[1].DocumentID)
	if err != nil {
		t.Fatalf("load second: %v", err)
	}
	if second.Title != "two.txt" {
		t.Fatalf("expected file-name fallback, got %q", second.Title)
	}
}

func TestHandlerBulkIngestRequiresMetadata(t *testing.T) {
	r := newTestRouter(t, NewMemoryRepo(), &stubStore{}, &stubIndex{})

	body, ct := multipartUpload(t, nil, "files", "one.txt", []byte("x"))
	resp := doRequest(r, http.MethodPost, "/api/v1/documents/bulk", body, ct)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without shared metadata, got %d", resp.Code)
	}
}

func TestHandlerUpdateAndDelete(t *testing.T) {
	repo := NewMemoryRepo()
	store := &stubStore{}
	r := newTestRouter(t, repo, store, &stubIndex{})

	now := time.Now().UTC()
	if err := repo.Insert(context.Background(), Document{
		ID:        "doc-1",
		OwnerID:   "guest:test-guest",
		Title:     "old",
		FileName:  "a.txt",
		BlobKey:   "blob-1",
		Status:    StatusReady,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	payload, _ := json.Marshal(map[string]string{"title": "new title"})
	resp := doRequest(r, http.MethodPatch, "/api/v1/documents/doc-1", bytes.NewBuffer(payload), "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var updated DocumentResponse
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Title != "new title" {
		t.Fatalf("expected updated title, got %q", updated.Title)
	}

	respDel := doRequest(r, http.MethodDelete, "/api/v1/documents/doc-1", nil, "")
	if respDel.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", respDel.Code)
	}
	respGet := doRequest(r, http.MethodGet, "/api/v1/documents/doc-1", nil, "")
	if respGet.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", respGet.Code)
	}
}

func TestHandlerList(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestRouter(t, repo, &stubStore{}, &stubIndex{})

	now := time.Now().UTC()
	for _, id := range []string{"doc-1", "doc-2"} {
		if err := repo.Insert(context.Background(), Document{
			ID:          id,
			OwnerID:     "guest:test-guest",
			FileName:    id + ".txt",
			ContentHash: "hash-" + id,
			Status:      StatusReady,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	resp := doRequest(r, http.MethodGet, "/api/v1/documents?limit=10", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var docs []DocumentResponse
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
}
