// Package bigquery is the BigQuery Store. Statements, their raw rows and the
// categorized ledger live in one dataset; see migrations/bigquery.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/store"
)

// BigQueryStore is the concrete implementation of store.Store that interacts
// with BigQuery. It holds a shared client to avoid creating a new connection
// for each operation.
type BigQueryStore struct {
	client *bigquery.Client
	ds     Dataset
}

// NewBigQueryStore creates a BigQueryStore with a shared BigQuery client.
func NewBigQueryStore(ctx context.Context, projectID, datasetID string) (*BigQueryStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewBigQueryStore: project ID is required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryStore: creating client: %w", err)
	}
	return &BigQueryStore{
		client: client,
		ds:     Dataset{Project: projectID, ID: datasetID},
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// CreateStatement delegates to CreateStatementWithClient.
func (r *BigQueryStore) CreateStatement(ctx context.Context, st *domain.Statement, rows []domain.RawRow) error {
	return CreateStatementWithClient(ctx, r.client, r.ds, st, rows)
}

// GetStatement delegates to GetStatementWithClient.
func (r *BigQueryStore) GetStatement(ctx context.Context, statementID string) (*domain.Statement, error) {
	return GetStatementWithClient(ctx, r.client, r.ds, statementID)
}

// ListStatements delegates to ListStatementsWithClient.
func (r *BigQueryStore) ListStatements(ctx context.Context) ([]*domain.Statement, error) {
	return ListStatementsWithClient(ctx, r.client, r.ds)
}

// StatementRows delegates to StatementRowsWithClient.
func (r *BigQueryStore) StatementRows(ctx context.Context, statementID string) ([]domain.RawRow, error) {
	return StatementRowsWithClient(ctx, r.client, r.ds, statementID)
}

// UpdateStatementStatus delegates to UpdateStatementStatusWithClient.
func (r *BigQueryStore) UpdateStatementStatus(ctx context.Context, statementID string, status domain.StatementStatus) error {
	return UpdateStatementStatusWithClient(ctx, r.client, r.ds, statementID, status)
}

// ImportTransactions delegates to ImportTransactionsWithClient.
func (r *BigQueryStore) ImportTransactions(ctx context.Context, statementID string, txns []*domain.Transaction) (int, error) {
	return ImportTransactionsWithClient(ctx, r.client, r.ds, statementID, txns)
}

// CountTransactions delegates to CountTransactionsWithClient.
func (r *BigQueryStore) CountTransactions(ctx context.Context, statementID string) (int, error) {
	return CountTransactionsWithClient(ctx, r.client, r.ds, statementID)
}

// ListTransactions delegates to ListTransactionsWithClient.
func (r *BigQueryStore) ListTransactions(ctx context.Context, statementID string) ([]*domain.CategorizedTransaction, error) {
	return ListTransactionsWithClient(ctx, r.client, r.ds, statementID)
}

// GetTransaction delegates to GetTransactionWithClient.
func (r *BigQueryStore) GetTransaction(ctx context.Context, transactionID string) (*domain.CategorizedTransaction, error) {
	return GetTransactionWithClient(ctx, r.client, r.ds, transactionID)
}

// SaveCategorization delegates to SaveCategorizationWithClient.
func (r *BigQueryStore) SaveCategorization(ctx context.Context, transactionID string, a domain.Assignment) (bool, error) {
	return SaveCategorizationWithClient(ctx, r.client, r.ds, transactionID, a)
}

// SetManualCategory delegates to SetManualCategoryWithClient.
func (r *BigQueryStore) SetManualCategory(ctx context.Context, transactionID string, category domain.Category) error {
	return SetManualCategoryWithClient(ctx, r.client, r.ds, transactionID, category)
}

var _ store.Store = (*BigQueryStore)(nil)
