package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-categorizer/internal/app"
	"github.com/dvloznov/statement-categorizer/internal/categorizer"
	"github.com/dvloznov/statement-categorizer/internal/config"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/jobs"
	"github.com/dvloznov/statement-categorizer/internal/logger"
	"github.com/dvloznov/statement-categorizer/internal/pipeline"
	"github.com/rs/zerolog"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a TOML config file")
		interval   = flag.Duration("interval", 0, "Re-scan statements at this interval; 0 runs a single pass")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	log := a.Log
	ctx = logger.WithContext(ctx, log)

	// Uploaded statements are imported before they are categorized.
	handler := jobs.CategorizeHandler(processFunc(a.Service))
	if err := a.Queue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Dur("interval", *interval).Msg("Worker service started")

loop:
	for {
		if err := runPass(ctx, a, log); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Worker pass failed")
		}
		if *interval <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case <-time.After(*interval):
		}
	}

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer shutdownCancel()
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

func processFunc(svc *pipeline.Service) jobs.CategorizeFunc {
	return func(ctx context.Context, statementID string) (categorizer.Result, error) {
		state, err := svc.Process(ctx, statementID)
		if err != nil {
			return categorizer.Result{}, err
		}
		if state.Categorized == nil {
			return categorizer.Result{StatementID: statementID}, nil
		}
		return *state.Categorized, nil
	}
}

// runPass publishes a job for every statement that is not yet categorized and
// waits until the queue has drained them.
func runPass(ctx context.Context, a *app.App, log zerolog.Logger) error {
	stmts, err := a.Service.Statements(ctx)
	if err != nil {
		return err
	}

	var published []*jobs.CategorizeStatementJob
	for _, st := range stmts {
		if !st.Status.Before(domain.StatementCategorized) {
			continue
		}
		job := &jobs.CategorizeStatementJob{StatementID: st.StatementID}
		if err := a.Queue.PublishCategorizeStatement(ctx, job); err != nil {
			return err
		}
		published = append(published, job)
	}
	log.Info().Int("statements", len(stmts)).Int("jobs", len(published)).Msg("Published categorization jobs")

	return waitForJobs(ctx, a.JobStore, published, log)
}

func waitForJobs(ctx context.Context, store jobs.JobStore, pending []*jobs.CategorizeStatementJob, log zerolog.Logger) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		remaining := pending[:0]
		for _, job := range pending {
			current, err := store.GetJob(ctx, job.JobID)
			if err != nil {
				return err
			}
			if current.Status.Active() {
				remaining = append(remaining, job)
				continue
			}
			ev := log.Info()
			if current.Status == jobs.JobStatusFailed {
				ev = log.Error().Str("error", current.Error)
			}
			if current.Result != nil {
				ev = ev.Int("rule", current.Result.Rule).
					Int("ml", current.Result.ML).
					Int("degraded", current.Result.Degraded)
			}
			ev.Str("statement_id", current.StatementID).
				Str("status", string(current.Status)).
				Msg("Statement job finished")
		}
		pending = remaining
	}
	return nil
}
