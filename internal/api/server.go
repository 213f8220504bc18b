package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"debias/config"
	"debias/internal/adapter/cache"
	"debias/internal/adapter/fs"
	"debias/internal/adapter/store"
	"debias/internal/domain"
	"debias/internal/port"
	"debias/internal/usecase"
)

// Server exposes the pipeline's artifacts over a thin JSON API. All dataset
// endpoints read files produced by the pipeline; the server itself holds no
// dataset state beyond a page cache.
type Server struct {
	cfg     *config.Config
	dataDir string
	runner  *usecase.Runner
	jobs    port.JobStore
	pages   *cache.PageCache
}

func NewServer(cfg *config.Config, dataDir string, runner *usecase.Runner, jobs port.JobStore) *Server {
	return &Server{
		cfg:     cfg,
		dataDir: dataDir,
		runner:  runner,
		jobs:    jobs,
		pages:   cache.NewPageCache(200, 5*time.Minute),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":  "debias",
		"ok":       true,
		"time_utc": time.Now().UTC().Format(time.RFC3339),
		"endpoints": []string{
			"/api/health", "/api/datasets/available",
			"/api/cleaned_resumes", "/api/unbiased_resumes", "/api/removed_entries",
			"/api/all_clusters", "/api/clusters", "/api/clusters/{id}",
			"/api/unbiased_embeddings_data", "/api/removed_embeddings_data",
			"/api/analysis/clusters", "/api/analysis/clusters/{id}",
			"/api/summary", "/api/download/{file_type}",
			"/api/upload", "/api/jobs/{id}/status",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "API is running",
	})
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	exists := func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}
	available := map[string]any{
		"cleaned_resumes":  exists(config.CleanedRecordsPath(s.dataDir)),
		"unbiased_resumes": exists(filepath.Join(config.UnbiasedDir(s.dataDir), "unbiased_resumes.csv")),
		"removed_entries":  exists(filepath.Join(config.UnbiasedDir(s.dataDir), "removed_entries.csv")),
		"all_clusters":     exists(filepath.Join(config.ClustersDir(s.dataDir), "all_clusters.csv")),
		"cluster_analysis": exists(config.AnalysisDir(s.dataDir)),
	}

	names := []string{}
	if paths, err := fs.Glob(config.ClustersDir(s.dataDir), "cluster_*.csv"); err == nil {
		for _, p := range paths {
			names = append(names, filepath.Base(p))
		}
	}
	available["individual_clusters"] = names

	writeJSON(w, http.StatusOK, available)
}

// pageResponse is one page of a CSV artifact, rows rendered as objects keyed
// by the CSV header.
type pageResponse struct {
	Dataset      string              `json:"dataset"`
	TotalRecords int                 `json:"total_records"`
	TotalPages   int                 `json:"total_pages"`
	CurrentPage  int                 `json:"current_page"`
	PageSize     int                 `json:"page_size"`
	Records      []map[string]string `json:"records"`
}

func (s *Server) servePaginated(w http.ResponseWriter, r *http.Request, path, dataset string) {
	info, err := os.Stat(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "%s dataset not found", dataset)
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 100)
	if pageSize > s.cfg.Server.MaxPageSize {
		pageSize = s.cfg.Server.MaxPageSize
	}
	if pageSize < 1 {
		pageSize = 100
	}

	if cached, ok := s.pages.Get(path, info.ModTime(), page, pageSize); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	header, rows, err := readCSV(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error reading dataset: %v", err)
		return
	}

	total := len(rows)
	totalPages := (total + pageSize - 1) / pageSize
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}

	records := make([]map[string]string, 0, end-start)
	for _, row := range rows[start:end] {
		record := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				record[col] = row[i]
			}
		}
		records = append(records, record)
	}

	resp := pageResponse{
		Dataset:      dataset,
		TotalRecords: total,
		TotalPages:   totalPages,
		CurrentPage:  page,
		PageSize:     pageSize,
		Records:      records,
	}
	s.pages.Put(path, info.ModTime(), page, pageSize, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCleanedResumes(w http.ResponseWriter, r *http.Request) {
	s.servePaginated(w, r, config.CleanedRecordsPath(s.dataDir), "cleaned_resumes")
}

func (s *Server) handleUnbiasedResumes(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(config.UnbiasedDir(s.dataDir), "unbiased_resumes.csv")
	s.servePaginated(w, r, path, "unbiased_resumes")
}

func (s *Server) handleRemovedEntries(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(config.UnbiasedDir(s.dataDir), "removed_entries.csv")
	s.servePaginated(w, r, path, "removed_entries")
}

func (s *Server) handleAllClusters(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(config.ClustersDir(s.dataDir), "all_clusters.csv")
	s.servePaginated(w, r, path, "all_clusters")
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cluster ID must be a number")
		return
	}
	path := config.ClusterRecordsPath(s.dataDir, id)
	if _, serr := os.Stat(path); serr != nil {
		writeError(w, http.StatusNotFound, "cluster %d not found", id)
		return
	}
	s.servePaginated(w, r, path, fmt.Sprintf("cluster_%d", id))
}

// handleClusters returns the reduced embeddings for every exported cluster.
func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	dir := config.ClustersDir(s.dataDir)
	if _, err := os.Stat(dir); err != nil {
		writeError(w, http.StatusNotFound, "clusters directory not found")
		return
	}
	paths, err := fs.Glob(dir, "cluster_*_embeddings_6d.json")
	if err != nil || len(paths) == 0 {
		writeError(w, http.StatusNotFound, "no cluster embedding files found")
		return
	}

	clusters := make(map[string]any, len(paths))
	for _, path := range paths {
		export, err := store.LoadClusterEmbeddings(path)
		if err != nil {
			slog.Warn("skipping unreadable cluster export", "path", path, "error", err)
			continue
		}
		vectors := make([][]float64, 0, len(export.Embeddings))
		for _, entry := range export.Embeddings {
			vectors = append(vectors, entry.Embedding)
		}
		clusters[fmt.Sprintf("cluster_%d", export.ClusterID)] = map[string]any{
			"count":      export.TotalEmbeddings,
			"dimensions": export.Dimensions,
			"embeddings": vectors,
		}
	}
	if len(clusters) == 0 {
		writeError(w, http.StatusInternalServerError, "failed to load any cluster embeddings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_clusters": len(clusters),
		"clusters":       clusters,
	})
}

func (s *Server) serveEmbeddingsMatrix(w http.ResponseWriter, name, label string) {
	path := filepath.Join(config.UnbiasedDir(s.dataDir), name)
	matrix, err := store.LoadMatrix(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "%s embeddings not found", label)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"embeddings": matrix,
		"shape":      []int{matrix.Rows(), matrix.Cols()},
		"dimensions": matrix.Cols(),
		"count":      matrix.Rows(),
	})
}

func (s *Server) handleUnbiasedEmbeddings(w http.ResponseWriter, r *http.Request) {
	s.serveEmbeddingsMatrix(w, "unbiased_embeddings_6d.bin", "unbiased")
}

func (s *Server) handleRemovedEmbeddings(w http.ResponseWriter, r *http.Request) {
	s.serveEmbeddingsMatrix(w, "removed_embeddings_6d.bin", "removed")
}

func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(config.AnalysisDir(s.dataDir), "all_clusters_analysis.json")
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "cluster analyses not found")
		return
	}
	var analyses []usecase.ClusterAnalysis
	if err := json.Unmarshal(data, &analyses); err != nil {
		writeError(w, http.StatusInternalServerError, "error reading analyses: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_analyses": len(analyses),
		"analyses":       analyses,
	})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cluster ID must be a number")
		return
	}
	path := filepath.Join(config.AnalysisDir(s.dataDir), fmt.Sprintf("cluster_%d_analysis.txt", id))
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "analysis for cluster %d not found", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cluster_id": id,
		"analysis":   string(data),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(config.UnbiasedDir(s.dataDir), "unbiasing_summary.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "unbiasing summary not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": string(data)})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileType := r.PathValue("file_type")
	paths := map[string]string{
		"cleaned_resumes":  config.CleanedRecordsPath(s.dataDir),
		"unbiased_resumes": filepath.Join(config.UnbiasedDir(s.dataDir), "unbiased_resumes.csv"),
		"removed_entries":  filepath.Join(config.UnbiasedDir(s.dataDir), "removed_entries.csv"),
		"all_clusters":     filepath.Join(config.ClustersDir(s.dataDir), "all_clusters.csv"),
		"embeddings":       config.EmbeddingsPath(s.dataDir),
		"summary":          filepath.Join(config.UnbiasedDir(s.dataDir), "unbiasing_summary.txt"),
	}
	path, ok := paths[fileType]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown file type: %s", fileType)
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file %s not found", fileType)
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil || s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "upload processing is not configured")
		return
	}

	maxBytes := int64(s.cfg.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "no file part in the request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file part in the request")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeError(w, http.StatusBadRequest, "only CSV files are supported")
		return
	}

	clusterCount := s.cfg.Pipeline.ClusterCount
	if raw := r.FormValue("cluster_count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			clusterCount = config.ClampClusterCount(n)
		}
	}

	jobID := uuid.NewString()
	jobDir := filepath.Join(config.UploadsDir(s.dataDir), jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, "error processing file: %v", err)
		return
	}
	inputPath := filepath.Join(jobDir, "Resume.csv")
	if err := saveUpload(inputPath, file); err != nil {
		os.RemoveAll(jobDir)
		writeError(w, http.StatusInternalServerError, "error processing file: %v", err)
		return
	}

	table, err := store.LoadRecords(inputPath, s.cfg.Pipeline.TextColumn)
	if err != nil {
		os.RemoveAll(jobDir)
		writeError(w, http.StatusBadRequest,
			"invalid CSV format: the file must contain a %q column", s.cfg.Pipeline.TextColumn)
		return
	}

	job := domain.Job{
		ID:           jobID,
		Status:       domain.JobProcessing,
		Dir:          jobDir,
		ClusterCount: clusterCount,
		RowCount:     table.Len(),
	}
	if err := s.jobs.Put(job); err != nil {
		writeError(w, http.StatusInternalServerError, "error processing file: %v", err)
		return
	}

	go s.runner.RunJob(context.WithoutCancel(r.Context()), job, inputPath)
	slog.Info("upload accepted", "job", jobID, "rows", table.Len(), "clusters", clusterCount)

	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "File uploaded successfully. Processing started.",
		"job_id":        jobID,
		"rows_count":    table.Len(),
		"status":        domain.JobProcessing,
		"cluster_count": clusterCount,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job tracking is not configured")
		return
	}
	job, err := s.jobs.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	resp := map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

// Router wires every endpoint onto a ServeMux.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/datasets/available", s.handleAvailable)
	mux.HandleFunc("GET /api/cleaned_resumes", s.handleCleanedResumes)
	mux.HandleFunc("GET /api/unbiased_resumes", s.handleUnbiasedResumes)
	mux.HandleFunc("GET /api/removed_entries", s.handleRemovedEntries)
	mux.HandleFunc("GET /api/all_clusters", s.handleAllClusters)
	mux.HandleFunc("GET /api/clusters", s.handleClusters)
	mux.HandleFunc("GET /api/clusters/{id}", s.handleCluster)
	mux.HandleFunc("GET /api/unbiased_embeddings_data", s.handleUnbiasedEmbeddings)
	mux.HandleFunc("GET /api/removed_embeddings_data", s.handleRemovedEmbeddings)
	mux.HandleFunc("GET /api/analysis/clusters", s.handleAnalyses)
	mux.HandleFunc("GET /api/analysis/clusters/{id}", s.handleAnalysis)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/download/{file_type}", s.handleDownload)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/jobs/{id}/status", s.handleJobStatus)
	return mux
}

// Start blocks serving the API on the configured address.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	slog.Info("API server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
