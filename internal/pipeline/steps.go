package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-categorizer/internal/categorizer"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/importer"
	"github.com/dvloznov/statement-categorizer/internal/logger"
	"github.com/dvloznov/statement-categorizer/internal/store"
)

// PipelineStep represents a single step in statement processing.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	StatementID string
	Statement   *domain.Statement
	RawRows     []domain.RawRow

	Rows      []domain.ValidatedRow
	Reconcile ReconcileResult

	Imported    *importer.Result
	Categorized *categorizer.Result
}

// LoadStatementStep loads the statement and its raw rows.
type LoadStatementStep struct {
	Store store.StatementRepository
}

func (s *LoadStatementStep) Execute(ctx context.Context, state *PipelineState) error {
	st, err := s.Store.GetStatement(ctx, state.StatementID)
	if err != nil {
		return notFoundOr(err, "statement", state.StatementID)
	}
	raws, err := s.Store.StatementRows(ctx, state.StatementID)
	if err != nil {
		return notFoundOr(err, "statement", state.StatementID)
	}
	state.Statement = st
	state.RawRows = raws
	return nil
}

// PrepareRowsStep validates the raw rows and reconciles their balances.
type PrepareRowsStep struct{}

func (s *PrepareRowsStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Statement == nil {
		return fmt.Errorf("PrepareRowsStep: statement not loaded")
	}
	validated := ValidateAll(state.RawRows, DateLayouts(state.Statement.Bank))
	state.Reconcile = Reconcile(validated)
	state.Rows = state.Reconcile.Rows

	if state.Reconcile.Unanchored {
		log := logger.ForStatement(logger.FromContext(ctx), state.StatementID)
		log.Warn().
			Msg("No balance column value in statement, running balance starts at zero")
	}
	return nil
}

// ImportStep stores the error-free rows.
type ImportStep struct {
	Importer *importer.Importer
}

func (s *ImportStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Importer.Import(ctx, state.StatementID, state.Rows)
	if err != nil {
		return err
	}
	state.Imported = &res
	return nil
}

// CategorizeStep labels the statement's transactions.
type CategorizeStep struct {
	Engine *categorizer.Engine
}

func (s *CategorizeStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Engine.Categorize(ctx, state.StatementID)
	if err != nil {
		return err
	}
	state.Categorized = &res
	return nil
}

// MarkStatusStep advances the statement status. It never moves a statement
// backwards and does nothing when the statement has no transactions yet.
type MarkStatusStep struct {
	Store  store.Store
	Status domain.StatementStatus
}

func (s *MarkStatusStep) Execute(ctx context.Context, state *PipelineState) error {
	current := state.Statement
	if current == nil {
		st, err := s.Store.GetStatement(ctx, state.StatementID)
		if err != nil {
			return notFoundOr(err, "statement", state.StatementID)
		}
		current = st
	}
	if !current.Status.Before(s.Status) {
		return nil
	}

	n, err := s.Store.CountTransactions(ctx, state.StatementID)
	if err != nil {
		return fmt.Errorf("MarkStatusStep: count transactions: %w", err)
	}
	if n == 0 {
		return nil
	}

	if err := s.Store.UpdateStatementStatus(ctx, state.StatementID, s.Status); err != nil {
		return fmt.Errorf("MarkStatusStep: %w", err)
	}
	current.Status = s.Status
	state.Statement = current
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
