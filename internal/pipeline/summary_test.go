package pipeline

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-categorizer/internal/categorizer"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func txn(date civil.Date, debit, credit string, c domain.Category) *domain.CategorizedTransaction {
	ct := &domain.CategorizedTransaction{Category: c}
	ct.Date = date
	if debit != "" {
		ct.Debit = domain.MustAmount(debit)
	}
	if credit != "" {
		ct.Credit = domain.MustAmount(credit)
	}
	return ct
}

func TestSummarize(t *testing.T) {
	mar := civil.Date{Year: 2024, Month: 3, Day: 5}
	apr := civil.Date{Year: 2024, Month: 4, Day: 1}

	sum := Summarize("st-1", []*domain.CategorizedTransaction{
		txn(mar, "200.00", "", domain.CategoryFood),
		txn(mar, "50.50", "", domain.CategoryFood),
		txn(mar, "300", "", domain.CategoryTravel),
		txn(mar, "", "1000", domain.CategorySalary),
		txn(apr, "20", "", domain.CategoryFood),
		txn(apr, "5", "", ""),
	})

	assert.Equal(t, "st-1", sum.StatementID)
	assert.Equal(t, 5, sum.Count)
	assert.Equal(t, "575.50", sum.Debit)
	assert.Equal(t, 1, sum.Uncategorized)
	assert.Equal(t, []CategorySpend{
		{Category: domain.CategoryTravel, Count: 1, Debit: "300.00"},
		{Category: domain.CategoryFood, Count: 3, Debit: "270.50"},
	}, sum.Categories)

	require.Len(t, sum.Months, 2)
	assert.Equal(t, "2024-03", sum.Months[0].Month)
	assert.Equal(t, 3, sum.Months[0].Count)
	assert.Equal(t, "550.50", sum.Months[0].Debit)
	assert.Equal(t, []CategorySpend{
		{Category: domain.CategoryTravel, Count: 1, Debit: "300.00"},
		{Category: domain.CategoryFood, Count: 2, Debit: "250.50"},
	}, sum.Months[0].Categories)
	assert.Equal(t, "2024-04", sum.Months[1].Month)
	assert.Equal(t, "25.00", sum.Months[1].Debit)
	assert.Equal(t, []CategorySpend{{Category: domain.CategoryFood, Count: 1, Debit: "20.00"}}, sum.Months[1].Categories)
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize("st-1", nil)
	assert.Zero(t, sum.Count)
	assert.Equal(t, "0.00", sum.Debit)
	assert.NotNil(t, sum.Categories)
	assert.NotNil(t, sum.Months)
}

func TestService_SummaryFollowsOverride(t *testing.T) {
	svc, _ := newService(t, categorizer.Unavailable)
	ctx := context.Background()

	st, err := svc.Upload(ctx, Upload{Bank: "HDFC", Rows: []domain.RawRow{
		{Date: "01/03/2024", Description: "UPI/1/SWIGGY/PAY", Debit: "200", Balance: "800"},
		{Date: "02/03/2024", Description: "UPI/2/ZOMATO/PAY", Debit: "100"},
		{Date: "03/04/2024", Description: "IRCTC TICKET", Debit: "40"},
	}})
	require.NoError(t, err)
	_, err = svc.Process(ctx, st.StatementID)
	require.NoError(t, err)

	before, err := svc.Summary(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, "340.00", before.Debit)
	assert.Equal(t, []CategorySpend{
		{Category: domain.CategoryFood, Count: 2, Debit: "300.00"},
		{Category: domain.CategoryTravel, Count: 1, Debit: "40.00"},
	}, before.Categories)

	txns, err := svc.Transactions(ctx, st.StatementID)
	require.NoError(t, err)
	_, err = svc.Override(ctx, txns[0].TransactionID, "Travel")
	require.NoError(t, err)

	after, err := svc.Summary(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, before.Debit, after.Debit)
	assert.Equal(t, []CategorySpend{
		{Category: domain.CategoryTravel, Count: 2, Debit: "240.00"},
		{Category: domain.CategoryFood, Count: 1, Debit: "100.00"},
	}, after.Categories)
	require.Len(t, after.Months, 2)
	assert.Equal(t, []CategorySpend{
		{Category: domain.CategoryTravel, Count: 1, Debit: "200.00"},
		{Category: domain.CategoryFood, Count: 1, Debit: "100.00"},
	}, after.Months[0].Categories)
}

func TestService_SummaryUnknownStatement(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Summary(context.Background(), "missing")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}
