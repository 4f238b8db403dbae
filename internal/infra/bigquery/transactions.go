package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-categorizer/internal/domain"
)

// TransactionRow mirrors the transactions table.
type TransactionRow struct {
	TransactionID string     `bigquery:"transaction_id"`
	StatementID   string     `bigquery:"statement_id"`
	RowNumber     int64      `bigquery:"row_number"`
	TxnDate       civil.Date `bigquery:"txn_date"`
	Description   string     `bigquery:"description"`

	Debit   *big.Rat `bigquery:"debit"`   // NULLABLE NUMERIC
	Credit  *big.Rat `bigquery:"credit"`  // NULLABLE NUMERIC
	Balance *big.Rat `bigquery:"balance"` // NULLABLE NUMERIC

	Merchant   bigquery.NullString `bigquery:"merchant"`
	IsRepaired bool                `bigquery:"is_repaired"`
	CreatedAt  time.Time           `bigquery:"created_at"`

	Category       bigquery.NullString    `bigquery:"category"`
	Confidence     bigquery.NullFloat64   `bigquery:"confidence"`
	Method         bigquery.NullString    `bigquery:"method"`
	RulePrediction bigquery.NullString    `bigquery:"rule_prediction"`
	MLPrediction   bigquery.NullString    `bigquery:"ml_prediction"`
	CategorizedAt  bigquery.NullTimestamp `bigquery:"categorized_at"`
}

// TransactionParam is one element of the import MERGE parameter. Amounts
// travel as decimal strings and are cast to NUMERIC in SQL, so absent values
// can be sent as "".
type TransactionParam struct {
	TransactionID string     `bigquery:"transaction_id"`
	StatementID   string     `bigquery:"statement_id"`
	RowNumber     int64      `bigquery:"row_number"`
	TxnDate       civil.Date `bigquery:"txn_date"`
	Description   string     `bigquery:"description"`
	Debit         string     `bigquery:"debit"`
	Credit        string     `bigquery:"credit"`
	Balance       string     `bigquery:"balance"`
	Merchant      string     `bigquery:"merchant"`
	IsRepaired    bool       `bigquery:"is_repaired"`
	CreatedAt     time.Time  `bigquery:"created_at"`
}

func newTransactionParam(statementID string, t *domain.Transaction) TransactionParam {
	return TransactionParam{
		TransactionID: t.TransactionID,
		StatementID:   statementID,
		RowNumber:     int64(t.RowNumber),
		TxnDate:       t.Date,
		Description:   t.Description,
		Debit:         domain.DecimalString(t.Debit),
		Credit:        domain.DecimalString(t.Credit),
		Balance:       domain.DecimalString(t.Balance),
		Merchant:      t.Merchant,
		IsRepaired:    t.IsRepaired,
		CreatedAt:     t.CreatedAt,
	}
}

func (r *TransactionRow) toDomain() *domain.CategorizedTransaction {
	t := &domain.CategorizedTransaction{
		Transaction: domain.Transaction{
			TransactionID: r.TransactionID,
			StatementID:   r.StatementID,
			RowNumber:     int(r.RowNumber),
			Date:          r.TxnDate,
			Description:   r.Description,
			Debit:         r.Debit,
			Credit:        r.Credit,
			Balance:       r.Balance,
			Merchant:      r.Merchant.StringVal,
			IsRepaired:    r.IsRepaired,
			CreatedAt:     r.CreatedAt,
		},
		Category:       domain.Category(r.Category.StringVal),
		Confidence:     r.Confidence.Float64,
		Method:         domain.Method(r.Method.StringVal),
		RulePrediction: domain.Category(r.RulePrediction.StringVal),
		MLPrediction:   domain.Category(r.MLPrediction.StringVal),
	}
	if r.CategorizedAt.Valid {
		ts := r.CategorizedAt.Timestamp
		t.CategorizedAt = &ts
	}
	return t
}
