package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/store"
	"google.golang.org/api/iterator"
)

// CreateStatementWithClient inserts a statement and its raw rows in one
// multi-statement transaction.
func CreateStatementWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, st *domain.Statement, rows []domain.RawRow) error {
	params := make([]RawRowParam, len(rows))
	for i, r := range rows {
		params[i] = RawRowParam{
			StatementID: st.StatementID,
			RowNumber:   int64(r.RowNumber),
			RawDate:     r.Date,
			Description: r.Description,
			Debit:       r.Debit,
			Credit:      r.Credit,
			Balance:     r.Balance,
			Amount:      r.Amount,
		}
	}

	q := client.Query(fmt.Sprintf(`
		BEGIN TRANSACTION;

		INSERT %s (statement_id, bank, row_count, created_at, source_filename, archive_uri, status)
		VALUES (@statement_id, @bank, @row_count, @created_at, @source_filename, @archive_uri, @status);

		INSERT %s (statement_id, row_number, raw_date, description, debit, credit, balance, amount)
		SELECT statement_id, row_number, raw_date, description, debit, credit, balance, amount
		FROM UNNEST(@rows);

		COMMIT TRANSACTION;
	`, ds.table(statementsTable), ds.table(statementRowsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: st.StatementID},
		{Name: "bank", Value: string(st.Bank)},
		{Name: "row_count", Value: st.RowCount},
		{Name: "created_at", Value: st.CreatedAt},
		{Name: "source_filename", Value: nullString(st.SourceFilename)},
		{Name: "archive_uri", Value: nullString(st.ArchiveURI)},
		{Name: "status", Value: string(st.Status)},
		{Name: "rows", Value: params},
	}

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("CreateStatement: %w", err)
	}
	return nil
}

// GetStatementWithClient loads one statement.
func GetStatementWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, statementID string) (*domain.Statement, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT statement_id, bank, row_count, created_at, source_filename, archive_uri, status
		FROM %s
		WHERE statement_id = @statement_id
		LIMIT 1
	`, ds.table(statementsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetStatement: query read: %w", err)
	}

	var row StatementRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetStatement: %s: %w", statementID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetStatement: iter next: %w", err)
	}
	return row.toDomain(), nil
}

// ListStatementsWithClient lists statements, newest first.
func ListStatementsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]*domain.Statement, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT statement_id, bank, row_count, created_at, source_filename, archive_uri, status
		FROM %s
		ORDER BY created_at DESC
	`, ds.table(statementsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListStatements: query read: %w", err)
	}

	var out []*domain.Statement
	for {
		var row StatementRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListStatements: iter next: %w", err)
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

// StatementRowsWithClient loads the raw rows of a statement in row order.
func StatementRowsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, statementID string) ([]domain.RawRow, error) {
	if _, err := GetStatementWithClient(ctx, client, ds, statementID); err != nil {
		return nil, fmt.Errorf("StatementRows: %w", err)
	}

	q := client.Query(fmt.Sprintf(`
		SELECT statement_id, row_number,
		       IFNULL(raw_date, '') AS raw_date, IFNULL(description, '') AS description,
		       IFNULL(debit, '') AS debit, IFNULL(credit, '') AS credit,
		       IFNULL(balance, '') AS balance, IFNULL(amount, '') AS amount
		FROM %s
		WHERE statement_id = @statement_id
		ORDER BY row_number
	`, ds.table(statementRowsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("StatementRows: query read: %w", err)
	}

	var out []domain.RawRow
	for {
		var row RawRowParam
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("StatementRows: iter next: %w", err)
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

// UpdateStatementStatusWithClient sets a statement's lifecycle status.
func UpdateStatementStatusWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, statementID string, status domain.StatementStatus) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status
		WHERE statement_id = @statement_id
	`, ds.table(statementsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
		{Name: "statement_id", Value: statementID},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("UpdateStatementStatus: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateStatementStatus: %s: %w", statementID, store.ErrNotFound)
	}
	return nil
}
