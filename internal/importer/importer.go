// Package importer turns reconciled statement rows into stored transactions.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dvloznov/statement-categorizer/internal/categorizer"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/logger"
	"github.com/dvloznov/statement-categorizer/internal/store"
	"github.com/google/uuid"
)

// transactionNamespace seeds deterministic transaction IDs, so the same
// (statement_id, row_number) always maps to the same transaction_id.
var transactionNamespace = uuid.MustParse("6f1d6b8e-4a0c-5c3e-9b57-1e0f2a7c9d41")

// Result reports the outcome of an import.
type Result struct {
	StatementID string `json:"statement_id"`
	// Count is the number of transactions stored for the statement after the
	// import. A repeated import returns the same Count.
	Count int `json:"count"`
	// Skipped is the number of rejected rows left out of the ledger.
	Skipped int `json:"skipped"`
	// Inserted is how many rows this call added. Zero on a repeated import.
	Inserted int `json:"inserted"`
}

// Importer writes the error-free rows of a statement to the ledger.
type Importer struct {
	repo store.Store
	now  func() time.Time
}

// New creates an Importer backed by repo.
func New(repo store.Store) *Importer {
	return &Importer{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// TransactionID returns the ID a row of a statement is stored under.
func TransactionID(statementID string, rowNumber int) string {
	return uuid.NewSHA1(transactionNamespace, []byte(statementID+"/"+strconv.Itoa(rowNumber))).String()
}

// Import stores every row of rows that carries no errors. It is idempotent on
// (statement_id, row_number) and atomic: on failure no row of this call is kept.
func (im *Importer) Import(ctx context.Context, statementID string, rows []domain.ValidatedRow) (Result, error) {
	log := logger.ForStatement(logger.FromContext(ctx), statementID)
	res := Result{StatementID: statementID}

	if _, err := im.repo.GetStatement(ctx, statementID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return res, &domain.Error{Code: domain.CodeNotFound, Message: "statement " + statementID + " not found", Cause: err}
		}
		return res, fmt.Errorf("Import: get statement: %w", err)
	}

	createdAt := im.now()
	txns := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		if !row.Valid() {
			res.Skipped++
			continue
		}
		txns = append(txns, toTransaction(statementID, row, createdAt))
	}

	inserted, err := im.repo.ImportTransactions(ctx, statementID, txns)
	if err != nil {
		log.Error().Err(err).Int("rows", len(txns)).Msg("Import failed, nothing stored")
		return res, &domain.Error{Code: domain.CodeImportFailed, Message: "import of statement " + statementID + " failed", Cause: err}
	}
	res.Inserted = inserted

	count, err := im.repo.CountTransactions(ctx, statementID)
	if err != nil {
		return res, fmt.Errorf("Import: count transactions: %w", err)
	}
	res.Count = count

	total := len(rows)
	rejectRate := 0.0
	if total > 0 {
		rejectRate = float64(res.Skipped) / float64(total)
	}
	log.Info().
		Int("total", total).
		Int("imported", len(txns)).
		Int("inserted", inserted).
		Int("rejects", res.Skipped).
		Float64("reject_rate", rejectRate).
		Msg("Statement imported")

	return res, nil
}

func toTransaction(statementID string, row domain.ValidatedRow, createdAt time.Time) *domain.Transaction {
	return &domain.Transaction{
		TransactionID: TransactionID(statementID, row.RowNumber),
		StatementID:   statementID,
		RowNumber:     row.RowNumber,
		Date:          row.Date,
		Description:   row.Description,
		Debit:         row.Debit,
		Credit:        row.Credit,
		Balance:       row.Balance,
		Merchant:      categorizer.ExtractMerchant(row.Description),
		IsRepaired:    row.IsRepaired,
		CreatedAt:     createdAt,
	}
}
