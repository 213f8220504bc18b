package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"debias/config"
	"debias/internal/adapter/embedding"
	"debias/internal/adapter/store"
	"debias/internal/usecase"
)

type fixedSummarizer struct{}

func (fixedSummarizer) Summarize(_ context.Context, clusterNum int, _ []string) (string, error) {
	return fmt.Sprintf("summary for cluster %d", clusterNum), nil
}

func (fixedSummarizer) ModelName() string { return "fixed" }

func apiConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pipeline.MinClusterSize = 5
	cfg.Pipeline.MinSamples = 3
	cfg.Pipeline.ClusterCount = 2
	cfg.Pipeline.TargetClusters = []int{1}
	return cfg
}

func datasetCSV(perGroup int) string {
	var b strings.Builder
	b.WriteString("ID,Resume_str\n")
	for i := 0; i < perGroup; i++ {
		fmt.Fprintf(&b, "%d,staff accountant with audit experience\n", i)
	}
	for i := 0; i < perGroup; i++ {
		fmt.Fprintf(&b, "%d,high school chemistry teacher\n", perGroup+i)
	}
	return b.String()
}

// newTestServer runs the pipeline once into a temp directory and returns a
// server over its artifacts.
func newTestServer(t *testing.T) (*Server, *store.BoltJobStore, string) {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "resumes.csv")
	if err := os.WriteFile(input, []byte(datasetCSV(15)), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := apiConfig()
	jobs, err := store.NewBoltJobStore(config.JobDBPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { jobs.Close() })

	runner := usecase.NewRunner(cfg, embedding.NewMockEmbedder(8), fixedSummarizer{}, jobs)
	if _, err := runner.Run(context.Background(), input, dir, 0, nil); err != nil {
		t.Fatal(err)
	}
	return NewServer(cfg, dir, runner, jobs), jobs, dir
}

func getJSON(t *testing.T, handler http.Handler, path string, wantStatus int) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("GET %s: status %d, want %d (body %s)", path, rec.Code, wantStatus, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	return body
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := getJSON(t, srv.Router(), "/api/health", http.StatusOK)
	if body["status"] != "healthy" {
		t.Fatalf("unexpected health payload: %v", body)
	}
}

func TestAvailableDatasets(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := getJSON(t, srv.Router(), "/api/datasets/available", http.StatusOK)
	for _, key := range []string{"cleaned_resumes", "unbiased_resumes", "removed_entries", "all_clusters", "cluster_analysis"} {
		if body[key] != true {
			t.Errorf("%s should be available, got %v", key, body[key])
		}
	}
	individual, ok := body["individual_clusters"].([]any)
	if !ok || len(individual) == 0 {
		t.Fatalf("expected individual cluster files, got %v", body["individual_clusters"])
	}
}

func TestPaginatedDataset(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := getJSON(t, srv.Router(), "/api/cleaned_resumes?page=2&page_size=10", http.StatusOK)

	if body["total_records"].(float64) != 30 {
		t.Fatalf("expected 30 records, got %v", body["total_records"])
	}
	if body["total_pages"].(float64) != 3 || body["current_page"].(float64) != 2 {
		t.Fatalf("bad pagination: %v", body)
	}
	records := body["records"].([]any)
	if len(records) != 10 {
		t.Fatalf("expected 10 records on page, got %d", len(records))
	}
	first := records[0].(map[string]any)
	if _, ok := first["Resume_str"]; !ok {
		t.Fatalf("record missing text column: %v", first)
	}

	// Out-of-range pages clamp to the last page.
	body = getJSON(t, srv.Router(), "/api/cleaned_resumes?page=99&page_size=10", http.StatusOK)
	if body["current_page"].(float64) != 3 {
		t.Fatalf("expected clamp to last page, got %v", body["current_page"])
	}
}

func TestClusterEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	body := getJSON(t, router, "/api/clusters/1", http.StatusOK)
	if body["dataset"] != "cluster_1" {
		t.Fatalf("unexpected dataset name: %v", body["dataset"])
	}

	getJSON(t, router, "/api/clusters/abc", http.StatusBadRequest)
	getJSON(t, router, "/api/clusters/99", http.StatusNotFound)

	body = getJSON(t, router, "/api/clusters", http.StatusOK)
	if body["total_clusters"].(float64) != 2 {
		t.Fatalf("expected 2 clusters, got %v", body["total_clusters"])
	}
	clusters := body["clusters"].(map[string]any)
	c1 := clusters["cluster_1"].(map[string]any)
	if c1["dimensions"].(float64) != 6 {
		t.Fatalf("expected 6-D embeddings, got %v", c1["dimensions"])
	}
}

func TestEmbeddingsData(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := getJSON(t, srv.Router(), "/api/unbiased_embeddings_data", http.StatusOK)
	if body["success"] != true || body["dimensions"].(float64) != 6 {
		t.Fatalf("unexpected payload: %v", body)
	}
	shape := body["shape"].([]any)
	if len(shape) != 2 || shape[1].(float64) != 6 {
		t.Fatalf("bad shape: %v", shape)
	}

	body = getJSON(t, srv.Router(), "/api/removed_embeddings_data", http.StatusOK)
	if body["count"].(float64) != 7 {
		t.Fatalf("expected 7 removed embeddings, got %v", body["count"])
	}
}

func TestAnalysisEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	body := getJSON(t, router, "/api/analysis/clusters", http.StatusOK)
	if body["total_analyses"].(float64) != 2 {
		t.Fatalf("expected 2 analyses, got %v", body["total_analyses"])
	}

	body = getJSON(t, router, "/api/analysis/clusters/1", http.StatusOK)
	if body["analysis"] != "summary for cluster 1" {
		t.Fatalf("unexpected analysis: %v", body["analysis"])
	}

	getJSON(t, router, "/api/analysis/clusters/99", http.StatusNotFound)
}

func TestSummaryEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := getJSON(t, srv.Router(), "/api/summary", http.StatusOK)
	summary, _ := body["summary"].(string)
	if !strings.Contains(summary, "UNBIASED DATASET SUMMARY") {
		t.Fatalf("unexpected summary: %q", summary)
	}
}

func TestDownload(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/download/unbiased_resumes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download failed: %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "unbiased_resumes.csv") {
		t.Fatalf("missing attachment header: %q", cd)
	}

	getJSON(t, router, "/api/download/nope", http.StatusNotFound)
}

func multipartUpload(t *testing.T, filename, content, clusterCount string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if clusterCount != "" {
		if err := writer.WriteField("cluster_count", clusterCount); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, writer.FormDataContentType()
}

func TestUploadAndJobStatus(t *testing.T) {
	srv, jobs, _ := newTestServer(t)
	router := srv.Router()

	body, contentType := multipartUpload(t, "data.csv", datasetCSV(12), "3")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	jobID, _ := resp["job_id"].(string)
	if jobID == "" {
		t.Fatalf("missing job_id: %v", resp)
	}
	if resp["rows_count"].(float64) != 24 || resp["cluster_count"].(float64) != 3 {
		t.Fatalf("unexpected upload response: %v", resp)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		job, err := jobs.Get(jobID)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == "completed" {
			break
		}
		if job.Status == "failed" {
			t.Fatalf("job failed: %s", job.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job still %s after deadline", job.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}

	status := getJSON(t, router, "/api/jobs/"+jobID+"/status", http.StatusOK)
	if status["status"] != "completed" {
		t.Fatalf("unexpected status payload: %v", status)
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	body, contentType := multipartUpload(t, "data.txt", "not a csv", "")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-CSV upload, got %d", rec.Code)
	}

	body, contentType = multipartUpload(t, "data.csv", "ID,Other\n1,x\n", "")
	req = httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing text column, got %d", rec.Code)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	getJSON(t, srv.Router(), "/api/jobs/nope/status", http.StatusNotFound)
}
