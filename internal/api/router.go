// Package api wires the HTTP router.
package api

import (
	"net/http"

	"github.com/dvloznov/statement-categorizer/internal/api/handlers"
	"github.com/dvloznov/statement-categorizer/internal/api/middleware"
	"github.com/dvloznov/statement-categorizer/internal/jobs"
	"github.com/dvloznov/statement-categorizer/internal/notionsync"
	"github.com/dvloznov/statement-categorizer/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Deps are the collaborators behind the routes. Publisher, JobStore and
// Syncer are optional.
type Deps struct {
	Service        *pipeline.Service
	Publisher      jobs.Publisher
	JobStore       jobs.JobStore
	Syncer         *notionsync.Syncer
	JWTSecret      string
	AllowedOrigins []string
	Log            zerolog.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.CORS(d.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	statements := handlers.NewStatementsHandler(d.Service, d.Publisher, d.Syncer, d.Log)
	transactions := handlers.NewTransactionsHandler(d.Service, d.Log)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(d.JWTSecret))

		r.Get("/categories", handlers.ListCategories)

		r.Post("/statements", statements.Upload)
		r.Get("/statements", statements.ListStatements)
		r.Route("/statements/{id}", func(r chi.Router) {
			r.Get("/", statements.GetStatement)
			r.Get("/preview", statements.Preview)
			r.Post("/import", statements.Import)
			r.Post("/categorize", statements.Categorize)
			r.Get("/transactions", statements.Transactions)
			r.Get("/summary", statements.Summary)
			r.Post("/sync-notion", statements.SyncNotion)
		})

		r.Put("/transactions/{id}/category", transactions.OverrideCategory)

		if d.JobStore != nil {
			jobsHandler := handlers.NewJobsHandler(d.JobStore, d.Log)
			r.Get("/jobs", jobsHandler.ListJobs)
			r.Get("/jobs/{id}", jobsHandler.GetJob)
		}
	})

	return r
}
