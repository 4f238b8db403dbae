package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/store"
	"google.golang.org/api/iterator"
)

const transactionColumns = `
	transaction_id, statement_id, row_number, txn_date, description,
	debit, credit, balance, merchant, is_repaired, created_at,
	category, confidence, method, rule_prediction, ml_prediction, categorized_at`

// ImportTransactionsWithClient inserts the rows of a statement with a single
// MERGE, which BigQuery applies atomically. Rows whose (statement_id,
// row_number) already exist are left alone.
func ImportTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, statementID string, txns []*domain.Transaction) (int, error) {
	if _, err := GetStatementWithClient(ctx, client, ds, statementID); err != nil {
		return 0, fmt.Errorf("ImportTransactions: %w", err)
	}
	if len(txns) == 0 {
		return 0, nil
	}

	params := make([]TransactionParam, len(txns))
	for i, t := range txns {
		params[i] = newTransactionParam(statementID, t)
	}

	q := client.Query(fmt.Sprintf(`
		MERGE %s T
		USING (SELECT * FROM UNNEST(@rows)) S
		ON T.statement_id = S.statement_id AND T.row_number = S.row_number
		WHEN NOT MATCHED THEN
		  INSERT (transaction_id, statement_id, row_number, txn_date, description,
		          debit, credit, balance, merchant, is_repaired, created_at)
		  VALUES (S.transaction_id, S.statement_id, S.row_number, S.txn_date, S.description,
		          SAFE_CAST(NULLIF(S.debit, '') AS NUMERIC),
		          SAFE_CAST(NULLIF(S.credit, '') AS NUMERIC),
		          SAFE_CAST(NULLIF(S.balance, '') AS NUMERIC),
		          NULLIF(S.merchant, ''), S.is_repaired, S.created_at)
	`, ds.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "rows", Value: params},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("ImportTransactions: %w", err)
	}
	return int(n), nil
}

// CountTransactionsWithClient counts the transactions of a statement.
func CountTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, statementID string) (int, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS n FROM %s WHERE statement_id = @statement_id
	`, ds.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountTransactions: query read: %w", err)
	}
	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil {
		return 0, fmt.Errorf("CountTransactions: iter next: %w", err)
	}
	return int(row.N), nil
}

// ListTransactionsWithClient lists a statement's transactions in row order.
func ListTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, statementID string) ([]*domain.CategorizedTransaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE statement_id = @statement_id
		ORDER BY row_number
	`, transactionColumns, ds.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	var out []*domain.CategorizedTransaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iter next: %w", err)
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

// GetTransactionWithClient loads a single transaction.
func GetTransactionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, transactionID string) (*domain.CategorizedTransaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE transaction_id = @transaction_id
		LIMIT 1
	`, transactionColumns, ds.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: query read: %w", err)
	}

	var row TransactionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetTransaction: %s: %w", transactionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: iter next: %w", err)
	}
	return row.toDomain(), nil
}

// SaveCategorizationWithClient writes an automated assignment unless the row
// is MANUAL. It reports whether the row was updated.
func SaveCategorizationWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, transactionID string, a domain.Assignment) (bool, error) {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET category = @category,
		    confidence = @confidence,
		    method = @method,
		    rule_prediction = NULLIF(@rule_prediction, ''),
		    ml_prediction = NULLIF(@ml_prediction, ''),
		    categorized_at = CURRENT_TIMESTAMP()
		WHERE transaction_id = @transaction_id
		  AND IFNULL(method, '') != 'MANUAL'
	`, ds.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category", Value: string(a.Category)},
		{Name: "confidence", Value: a.Confidence},
		{Name: "method", Value: string(a.Method)},
		{Name: "rule_prediction", Value: string(a.RulePrediction)},
		{Name: "ml_prediction", Value: string(a.MLPrediction)},
		{Name: "transaction_id", Value: transactionID},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return false, fmt.Errorf("SaveCategorization: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	if _, err := GetTransactionWithClient(ctx, client, ds, transactionID); err != nil {
		return false, fmt.Errorf("SaveCategorization: %w", err)
	}
	return false, nil
}

// SetManualCategoryWithClient pins a user-chosen category.
func SetManualCategoryWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, transactionID string, category domain.Category) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET category = @category,
		    confidence = @confidence,
		    method = @method,
		    categorized_at = CURRENT_TIMESTAMP()
		WHERE transaction_id = @transaction_id
	`, ds.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category", Value: string(category)},
		{Name: "confidence", Value: domain.ManualConfidence},
		{Name: "method", Value: string(domain.MethodManual)},
		{Name: "transaction_id", Value: transactionID},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("SetManualCategory: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("SetManualCategory: %s: %w", transactionID, store.ErrNotFound)
	}
	return nil
}
