package hosted

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auditdocs-backend/internal/searchindex"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(srv.URL, "test-key", 2*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestSubmitFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/files" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"file_id":"file-123"}`))
	})

	ref, err := client.SubmitFile(context.Background(), "audit.pdf", []byte("pdf-bytes"))
	if err != nil {
		t.Fatalf("SubmitFile: %v", err)
	}
	if ref != "file-123" {
		t.Fatalf("expected file-123, got %s", ref)
	}
}

func TestSubmitFileServiceError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"extraction backend down"}}`))
	})

	if _, err := client.SubmitFile(context.Background(), "audit.pdf", []byte("x")); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestProbeSearchable(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    searchindex.ProbeResult
		wantErr bool
	}{
		{name: "hit", status: http.StatusOK, body: `{"results":[{"text":"chunk"}]}`, want: searchindex.ProbeReady},
		{name: "no hits yet", status: http.StatusOK, body: `{"results":[]}`, want: searchindex.ProbeNotReady},
		{name: "file unknown to partition", status: http.StatusNotFound, body: `{}`, want: searchindex.ProbeNotReady},
		{name: "server error", status: http.StatusBadGateway, body: `{}`, want: searchindex.ProbeNotReady, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/partitions/part-1/retrieve" {
					t.Fatalf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			got, err := client.ProbeSearchable(context.Background(), "part-1", "file-1")
			if tt.wantErr != (err != nil) {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("probe = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFileStatusMapping(t *testing.T) {
	tests := []struct {
		status string
		want   searchindex.ProbeResult
	}{
		{status: "ready", want: searchindex.ProbeReady},
		{status: "completed", want: searchindex.ProbeReady},
		{status: "failed", want: searchindex.ProbeFailed},
		{status: "processing", want: searchindex.ProbeNotReady},
		{status: "", want: searchindex.ProbeNotReady},
	}

	for _, tt := range tests {
		tt := tt
		t.Run("status "+tt.status, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"file_id":"file-1","status":"` + tt.status + `"}`))
			})
			got, err := client.FileStatus(context.Background(), "file-1")
			if err != nil {
				t.Fatalf("FileStatus: %v", err)
			}
			if got != tt.want {
				t.Fatalf("FileStatus(%q) = %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestDeleteFileIgnoresMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if err := client.DeleteFile(context.Background(), "gone"); err != nil {
		t.Fatalf("DeleteFile on 404: %v", err)
	}
}

func TestAsk(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/partitions/part-1/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"text":"the finding is X","citations":[{"source":"audit.pdf","page":3}]}`))
	})

	answer, err := client.Ask(context.Background(), "part-1", []searchindex.Message{{Role: "user", Content: "what is the finding?"}}, 5)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Text != "the finding is X" {
		t.Fatalf("unexpected answer text %q", answer.Text)
	}
	if len(answer.Citations) != 1 || answer.Citations[0].Source != "audit.pdf" {
		t.Fatalf("unexpected citations %+v", answer.Citations)
	}
}
