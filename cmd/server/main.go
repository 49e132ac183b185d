// Package main provides the HTTP API server for the payroll batch engine.
// It exposes the upload, job management and export endpoints used by the
// frontend and wires the background job dispatcher.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"payroll-batch-engine/internal/config"
	"payroll-batch-engine/internal/handlers"
	"payroll-batch-engine/internal/models"
	"payroll-batch-engine/internal/services/database"
	"payroll-batch-engine/internal/services/engine"
	"payroll-batch-engine/internal/services/notifier"
	"payroll-batch-engine/internal/services/payments"
	"payroll-batch-engine/internal/services/storage"
	"payroll-batch-engine/internal/services/worker"
	"payroll-batch-engine/internal/utils"

	"github.com/rs/cors"
)

// Server holds all dependencies
type Server struct {
	db       *database.DB
	ingestor *handlers.Ingestor
	jobs     *handlers.JobManager
	dispatch worker.Dispatcher
	storage  *storage.Service
	auth     handlers.IdentityResolver
	config   *config.Config
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PresignedURLRequest represents the request for a presigned upload URL
type PresignedURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// ProcessRequest references an already-uploaded object by key
type ProcessRequest struct {
	Key string `json:"key"`
}

// RowsRequest carries an inline JSON batch
type RowsRequest struct {
	Rows []models.RawRow `json:"rows"`
}

// JobDetailResponse is the job detail payload including per-row state
type JobDetailResponse struct {
	Job  *models.Job         `json:"job"`
	Rows []models.RowSummary `json:"rows"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := utils.InitLogger(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer utils.Logger.Sync()

	db, err := database.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	jobRepo := database.NewJobRepository(db)
	rowRepo := database.NewRowRepository(db)

	adapter := payments.NewFakeAdapter(
		cfg.ProviderSeed,
		cfg.ProviderSuccessRate,
		time.Duration(cfg.ProviderLatencyMs)*time.Millisecond,
	)

	var jobNotifier worker.Notifier
	if cfg.SESSenderEmail != "" {
		svc, err := notifier.NewService(context.Background(), cfg.SESSenderEmail, notifier.UploaderEmailResolver)
		if err != nil {
			log.Printf("Warning: Could not initialize notifier: %v", err)
		} else {
			jobNotifier = svc
		}
	}

	processor := worker.NewProcessor(jobRepo, rowRepo, adapter, jobNotifier,
		cfg.BatchSize, time.Duration(cfg.BackoffBaseMs)*time.Millisecond)

	dispatch := worker.NewMemoryDispatcher(cfg.DispatchWorkers, 256, cfg.DispatchAttempts,
		func(ctx context.Context, item worker.WorkItem) error {
			return processor.Process(ctx, item.JobID)
		})

	eng := engine.New(cfg.MaxBatchRows, nil)
	ingestor := handlers.NewIngestor(eng, jobRepo, rowRepo, dispatch, cfg.MaxRetries)

	var store *storage.Service
	if cfg.S3Bucket != "" {
		store, err = storage.NewService(context.Background(), cfg.S3Bucket)
		if err != nil {
			log.Printf("Warning: Could not initialize S3 storage: %v", err)
		}
	}

	tokens := handlers.ParseTokenTable(cfg.AuthTokens)
	if len(tokens) == 0 {
		log.Fatalf("No auth tokens configured: set AUTH_TOKENS (token:user:role,...)")
	}

	server := &Server{
		db:       db,
		ingestor: ingestor,
		jobs:     handlers.NewJobManager(jobRepo, rowRepo, dispatch),
		dispatch: dispatch,
		storage:  store,
		auth:     handlers.NewTokenResolver(tokens),
		config:   cfg,
	}

	// Setup routes
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", server.healthHandler)
	mux.HandleFunc("/api/health", server.healthHandler)

	// Presigned URL endpoint (for S3 uploads)
	mux.HandleFunc("/api/presigned-url", server.presignedURLHandler)

	// Direct batch upload (multipart CSV or JSON rows)
	mux.HandleFunc("/api/upload", server.uploadHandler)

	// Ingest an uploaded S3 object by key
	mux.HandleFunc("/api/process", server.processHandler)

	// Job listing, detail, cancel and export
	mux.HandleFunc("/api/jobs", server.jobsHandler)
	mux.HandleFunc("/api/jobs/", server.jobHandler)

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := c.Handler(mux)

	port := getEnvOrDefault("PORT", "8080")
	addr := fmt.Sprintf("0.0.0.0:%s", port)

	log.Printf("Payroll Batch Engine API Server")
	log.Printf("Listening on http://localhost:%s", port)
	log.Printf("Health: http://localhost:%s/health", port)
	log.Println("")

	httpServer := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s...", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server failed: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received %v, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ShutdownTimeoutMs)*time.Millisecond)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown incomplete: %v", err)
	}
	if err := dispatch.Shutdown(shutdownCtx); err != nil {
		log.Printf("Dispatcher shutdown incomplete: %v", err)
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err == nil {
			dbStatus = "connected"
		}
	}

	response := Response{
		Success: true,
		Message: "Payroll Batch Engine API is running",
		Data: map[string]interface{}{
			"status":    "healthy",
			"database":  dbStatus,
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   "1.0.0",
		},
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) presignedURLHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, err := s.auth.Resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req PresignedURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "Invalid request body",
		})
		return
	}

	if s.storage == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "Object storage is not configured",
		})
		return
	}

	key := fmt.Sprintf("uploads/%s/%d_%s", identity.UserID, time.Now().Unix(), req.Filename)
	result, err := s.storage.PresignUpload(r.Context(), key, req.ContentType, 60)
	if err != nil {
		log.Printf("Failed to presign upload: %v", err)
		writeJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   "Failed to create upload URL",
		})
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, err := s.auth.Resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// JSON bodies carry inline rows, multipart bodies carry a CSV file.
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		s.handleRowsUpload(w, r, identity)
		return
	}

	log.Printf("CSV upload request received from %s", identity.UserID)

	if err := r.ParseMultipartForm(10 << 20); err != nil { // 10MB max
		log.Printf("Failed to parse form: %v", err)
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "Failed to parse form: " + err.Error(),
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		log.Printf("No file in form: %v", err)
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "No file provided",
		})
		return
	}
	defer file.Close()

	log.Printf("Processing file: %s (%.2f KB)", header.Filename, float64(header.Size)/1024)

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "Only CSV files are allowed",
		})
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   "Failed to read file",
		})
		return
	}

	result, err := s.ingestor.IngestCSV(r.Context(), string(content), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Batch accepted",
		Data:    result,
	})
}

func (s *Server) handleRowsUpload(w http.ResponseWriter, r *http.Request, identity *handlers.Identity) {
	var req RowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "Invalid request body",
		})
		return
	}

	result, err := s.ingestor.IngestRows(r.Context(), req.Rows, identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Batch accepted",
		Data:    result,
	})
}

func (s *Server) processHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, err := s.auth.Resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "Invalid request: key is required",
		})
		return
	}

	if s.storage == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "Object storage is not configured",
		})
		return
	}

	content, err := s.storage.Download(r.Context(), req.Key)
	if err != nil {
		writeJSON(w, http.StatusNotFound, Response{
			Success: false,
			Error:   "Object not found. Please upload again.",
		})
		return
	}

	result, err := s.ingestor.IngestCSV(r.Context(), string(content), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.storage.Archive(r.Context(), req.Key); err != nil {
		log.Printf("Warning: Could not archive %s: %v", req.Key, err)
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Batch accepted",
		Data:    result,
	})
}

func (s *Server) jobsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, err := s.auth.Resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	result, err := s.jobs.List(r.Context(), identity.UserID, page, limit)
	if err != nil {
		log.Printf("Error listing jobs: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// jobHandler routes /api/jobs/{id}, /api/jobs/{id}/cancel and
// /api/jobs/{id}/export.
func (s *Server) jobHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := s.auth.Resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	jobID := parts[0]
	if jobID == "" {
		http.NotFound(w, r)
		return
	}

	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleJobDetail(w, r, identity, jobID)
	case action == "" && r.Method == http.MethodDelete:
		s.handleJobDelete(w, r, identity, jobID)
	case action == "cancel" && r.Method == http.MethodPost:
		s.handleJobCancel(w, r, identity, jobID)
	case action == "export" && r.Method == http.MethodGet:
		s.handleJobExport(w, r, identity, jobID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request, identity *handlers.Identity, jobID string) {
	job, rows, err := s.jobs.Detail(r.Context(), identity.UserID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    JobDetailResponse{Job: job, Rows: rows},
	})
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request, identity *handlers.Identity, jobID string) {
	job, err := s.jobs.Cancel(r.Context(), identity.UserID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Job cancelled",
		Data:    job.ToSummary(),
	})
}

func (s *Server) handleJobExport(w http.ResponseWriter, r *http.Request, identity *handlers.Identity, jobID string) {
	csvContent, err := s.jobs.Export(r.Context(), identity.UserID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="job_%s.csv"`, jobID))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, csvContent)
}

func (s *Server) handleJobDelete(w http.ResponseWriter, r *http.Request, identity *handlers.Identity, jobID string) {
	if err := s.jobs.Delete(r.Context(), identity.UserID, jobID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Job deleted",
	})
}

func queryInt(r *http.Request, name string, defaultVal int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return defaultVal
	}
	return val
}

// writeError maps domain errors to HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case models.IsValidation(err):
		status = http.StatusBadRequest
		message = err.Error()
	case models.IsNotFound(err):
		status = http.StatusNotFound
		message = err.Error()
	case models.IsConflict(err):
		status = http.StatusConflict
		message = err.Error()
	case models.IsUnauthorized(err):
		status = http.StatusUnauthorized
		message = err.Error()
	default:
		log.Printf("Internal error: %v", err)
	}

	writeJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
