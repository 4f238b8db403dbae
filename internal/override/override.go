// Package override applies manual category corrections.
package override

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/logger"
	"github.com/dvloznov/statement-categorizer/internal/store"
)

// Reconciler pins user-chosen categories. A pinned transaction is never
// touched again by automated categorization.
type Reconciler struct {
	repo store.TransactionRepository
}

// NewReconciler creates a Reconciler.
func NewReconciler(repo store.TransactionRepository) *Reconciler {
	return &Reconciler{repo: repo}
}

// Override sets the category of one transaction to category with method MANUAL
// and confidence 1.0. Earlier rule and ML predictions are kept. A category
// outside the set yields an INVALID_CATEGORY error and changes nothing.
func (r *Reconciler) Override(ctx context.Context, transactionID, category string) (*domain.CategorizedTransaction, error) {
	c, err := domain.ParseCategory(category)
	if err != nil {
		return nil, err
	}

	before, err := r.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, notFound(transactionID, err)
	}

	if err := r.repo.SetManualCategory(ctx, transactionID, c); err != nil {
		return nil, notFound(transactionID, err)
	}

	after, err := r.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, notFound(transactionID, err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("transaction_id", transactionID).
		Str("statement_id", after.StatementID).
		Str("from", string(before.Category)).
		Str("to", string(c)).
		Msg("Category overridden")

	return after, nil
}

func notFound(transactionID string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &domain.Error{Code: domain.CodeNotFound, Message: "transaction " + transactionID + " not found", Cause: err}
	}
	return fmt.Errorf("Override: %w", err)
}
