// Package store declares the persistence contracts shared by the pipeline and
// its storage backends in internal/infra.
package store

import (
	"context"
	"errors"

	"github.com/dvloznov/statement-categorizer/internal/domain"
)

// ErrNotFound is returned when a statement or transaction does not exist.
var ErrNotFound = errors.New("not found")

// StatementRepository persists uploaded statements and their raw rows.
type StatementRepository interface {
	// CreateStatement stores a new statement together with its raw rows.
	CreateStatement(ctx context.Context, st *domain.Statement, rows []domain.RawRow) error

	// GetStatement retrieves a statement by ID.
	GetStatement(ctx context.Context, statementID string) (*domain.Statement, error)

	// ListStatements retrieves all statements, newest first.
	ListStatements(ctx context.Context) ([]*domain.Statement, error)

	// StatementRows retrieves the raw rows of a statement in row_number order.
	StatementRows(ctx context.Context, statementID string) ([]domain.RawRow, error)

	// UpdateStatementStatus records how far a statement has progressed.
	UpdateStatementStatus(ctx context.Context, statementID string, status domain.StatementStatus) error
}

// TransactionRepository persists imported transactions and their categories.
type TransactionRepository interface {
	// ImportTransactions inserts txns for a statement as one atomic unit. Rows
	// whose (statement_id, row_number) already exists are skipped, so a repeated
	// or concurrent import resolves to a no-op. It returns the number of rows
	// actually inserted.
	ImportTransactions(ctx context.Context, statementID string, txns []*domain.Transaction) (int, error)

	// CountTransactions returns the number of transactions stored for a statement.
	CountTransactions(ctx context.Context, statementID string) (int, error)

	// ListTransactions retrieves a statement's transactions in row_number order.
	ListTransactions(ctx context.Context, statementID string) ([]*domain.CategorizedTransaction, error)

	// GetTransaction retrieves a single transaction.
	GetTransaction(ctx context.Context, transactionID string) (*domain.CategorizedTransaction, error)

	// SaveCategorization writes an automated category assignment. It leaves
	// MANUAL rows untouched and reports whether the write was applied.
	SaveCategorization(ctx context.Context, transactionID string, a domain.Assignment) (bool, error)

	// SetManualCategory pins a category chosen by the user. Rule and ML
	// predictions are kept.
	SetManualCategory(ctx context.Context, transactionID string, category domain.Category) error
}

// Store is the full persistence surface used by the service.
type Store interface {
	StatementRepository
	TransactionRepository

	// Close releases the backend's connections.
	Close() error
}
