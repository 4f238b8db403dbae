package bigquery

import (
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetTable(t *testing.T) {
	ds := Dataset{Project: "proj", ID: "ledger"}
	assert.Equal(t, "`proj.ledger.transactions`", ds.table(transactionsTable))
}

func TestTransactionRowToDomain(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	row := TransactionRow{
		TransactionID:  "t1",
		StatementID:    "s1",
		RowNumber:      3,
		TxnDate:        civil.Date{Year: 2024, Month: time.March, Day: 4},
		Description:    "UPI-SWIGGY",
		Debit:          domain.MustAmount("250.50"),
		Merchant:       bigquery.NullString{StringVal: "Swiggy", Valid: true},
		Category:       bigquery.NullString{StringVal: "Food", Valid: true},
		Confidence:     bigquery.NullFloat64{Float64: 0.95, Valid: true},
		Method:         bigquery.NullString{StringVal: "RULE", Valid: true},
		RulePrediction: bigquery.NullString{StringVal: "Food", Valid: true},
		CategorizedAt:  bigquery.NullTimestamp{Timestamp: at, Valid: true},
	}

	got := row.toDomain()
	assert.Equal(t, 3, got.RowNumber)
	assert.Equal(t, "Swiggy", got.Merchant)
	assert.Equal(t, domain.CategoryFood, got.Category)
	assert.Equal(t, domain.MethodRule, got.Method)
	assert.Equal(t, domain.Category(""), got.MLPrediction)
	assert.Nil(t, got.Credit)
	require.NotNil(t, got.CategorizedAt)
	assert.True(t, at.Equal(*got.CategorizedAt))
}

func TestTransactionRowToDomainUncategorized(t *testing.T) {
	got := (&TransactionRow{TransactionID: "t2"}).toDomain()
	assert.Empty(t, got.Category)
	assert.Empty(t, got.Method)
	assert.Nil(t, got.CategorizedAt)
}

func TestNewTransactionParam(t *testing.T) {
	p := newTransactionParam("s1", &domain.Transaction{
		TransactionID: "t1",
		RowNumber:     2,
		Credit:        domain.MustAmount("50"),
		Balance:       domain.MustAmount("850.125"),
	})
	assert.Equal(t, "s1", p.StatementID)
	assert.Equal(t, int64(2), p.RowNumber)
	assert.Equal(t, "", p.Debit)
	assert.Equal(t, "50.00", p.Credit)
	assert.Equal(t, "850.125", p.Balance)
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, bigquery.NullString{StringVal: "a.csv", Valid: true}, nullString("a.csv"))
}
