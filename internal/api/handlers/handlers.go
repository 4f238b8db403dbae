// Package handlers implements the REST endpoints over the statement pipeline.
package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/dvloznov/statement-categorizer/internal/api/middleware"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/jobs"
	"github.com/dvloznov/statement-categorizer/internal/notionsync"
	"github.com/dvloznov/statement-categorizer/internal/pipeline"
	"github.com/dvloznov/statement-categorizer/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// MaxUploadBytes caps the size of an uploaded statement.
const MaxUploadBytes = 10 << 20

// writeServiceError maps coded domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error, msg string) {
	code := domain.CodeOf(err)
	status := http.StatusInternalServerError
	switch {
	case code == domain.CodeInvalidCategory, code == domain.CodeInvalidInput:
		status = http.StatusBadRequest
	case code == domain.CodeNotFound, errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		status = http.StatusNotFound
		if code == "" {
			code = domain.CodeNotFound
		}
	case code == domain.CodePredictorUnavailable:
		status = http.StatusServiceUnavailable
	}
	if code == "" {
		code = "INTERNAL"
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, status, string(code), msg)
		return
	}
	middleware.WriteError(w, status, string(code), err.Error())
}

// StatementsHandler handles statement endpoints.
type StatementsHandler struct {
	svc       *pipeline.Service
	publisher jobs.Publisher
	syncer    *notionsync.Syncer
	log       zerolog.Logger
}

// NewStatementsHandler creates a new statements handler. publisher and syncer
// may be nil, which disables async categorization and Notion sync.
func NewStatementsHandler(svc *pipeline.Service, publisher jobs.Publisher, syncer *notionsync.Syncer, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{svc: svc, publisher: publisher, syncer: syncer, log: log}
}

type uploadRequest struct {
	Bank     string          `json:"bank"`
	Filename string          `json:"filename"`
	Rows     []domain.RawRow `json:"rows"`
}

// Upload handles POST /api/statements. It accepts a multipart CSV upload
// (fields "file" and "bank") or a JSON body of extracted rows.
func (h *StatementsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	var (
		st  *domain.Statement
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, string(domain.CodeInvalidInput), "Invalid multipart form")
			return
		}
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			middleware.WriteError(w, http.StatusBadRequest, string(domain.CodeInvalidInput), "file is required")
			return
		}
		defer file.Close()
		st, err = h.svc.UploadCSV(ctx, r.FormValue("bank"), header.Filename, file)
	} else {
		var req uploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, string(domain.CodeInvalidInput), "Invalid request body")
			return
		}
		st, err = h.svc.Upload(ctx, pipeline.Upload{Bank: req.Bank, Filename: req.Filename, Rows: req.Rows})
	}
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to upload statement")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, st)
}

// ListStatements handles GET /api/statements
func (h *StatementsHandler) ListStatements(w http.ResponseWriter, r *http.Request) {
	statements, err := h.svc.Statements(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list statements")
		return
	}
	if statements == nil {
		statements = []*domain.Statement{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": statements,
		"count":      len(statements),
	})
}

// GetStatement handles GET /api/statements/{id}
func (h *StatementsHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Statement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get statement")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, st)
}

// Preview handles GET /api/statements/{id}/preview
func (h *StatementsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to preview statement")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

// Import handles POST /api/statements/{id}/import
func (h *StatementsHandler) Import(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Import(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to import statement")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Categorize handles POST /api/statements/{id}/categorize. With ?async=true
// the run is queued and the job is returned with 202.
func (h *StatementsHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	statementID := chi.URLParam(r, "id")

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async && h.publisher != nil {
		if _, err := h.svc.Statement(ctx, statementID); err != nil {
			writeServiceError(w, h.log, err, "Failed to get statement")
			return
		}

		job := &jobs.CategorizeStatementJob{StatementID: statementID}
		if err := h.publisher.PublishCategorizeStatement(ctx, job); err != nil {
			writeServiceError(w, h.log, err, "Failed to enqueue categorization job")
			return
		}

		h.log.Info().Str("job_id", job.JobID).Str("statement_id", statementID).Msg("Categorization job enqueued")
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
			"job_id":       job.JobID,
			"statement_id": statementID,
			"status":       string(job.Status),
		})
		return
	}

	res, err := h.svc.Categorize(ctx, statementID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to categorize statement")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Transactions handles GET /api/statements/{id}/transactions
func (h *StatementsHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	txns, err := h.svc.Transactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list transactions")
		return
	}
	// Return array directly for frontend compatibility
	middleware.WriteJSON(w, http.StatusOK, txns)
}

// Summary handles GET /api/statements/{id}/summary
func (h *StatementsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to summarize statement")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sum)
}

// SyncNotion handles POST /api/statements/{id}/sync-notion
func (h *StatementsHandler) SyncNotion(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		middleware.WriteError(w, http.StatusNotImplemented, "NOT_CONFIGURED", "Notion sync is not configured")
		return
	}
	ctx := r.Context()
	statementID := chi.URLParam(r, "id")

	if _, err := h.svc.Statement(ctx, statementID); err != nil {
		writeServiceError(w, h.log, err, "Failed to get statement")
		return
	}
	res, err := h.syncer.SyncStatement(ctx, notionsync.ListerFunc(h.svc.Transactions), statementID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to sync statement to Notion")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	svc *pipeline.Service
	log zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc *pipeline.Service, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{svc: svc, log: log}
}

// OverrideCategory handles PUT /api/transactions/{id}/category
func (h *TransactionsHandler) OverrideCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, string(domain.CodeInvalidInput), "Invalid request body")
		return
	}

	if _, err := h.svc.Override(r.Context(), chi.URLParam(r, "id"), req.Category); err != nil {
		writeServiceError(w, h.log, err, "Failed to override category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCategories handles GET /api/categories
func ListCategories(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":    domain.CategorySetVersion,
		"categories": domain.CategoryNames(),
		"count":      len(domain.Categories),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		StatementID: query.Get("statement_id"),
		Status:      jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
