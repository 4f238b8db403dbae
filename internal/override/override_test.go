package override

import (
	"context"
	"testing"

	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.CreateStatement(ctx, &domain.Statement{StatementID: "stmt-1"}, nil))
	_, err := s.ImportTransactions(ctx, "stmt-1", []*domain.Transaction{
		{TransactionID: "txn-1", RowNumber: 1, Description: "ZOMATO", Debit: domain.MustAmount("10")},
	})
	require.NoError(t, err)
	_, err = s.SaveCategorization(ctx, "txn-1", domain.Assignment{
		Category:       domain.CategoryFood,
		Confidence:     0.95,
		Method:         domain.MethodRule,
		RulePrediction: domain.CategoryFood,
	})
	require.NoError(t, err)
	return s
}

func TestOverride_PinsCategory(t *testing.T) {
	s := seeded(t)
	got, err := NewReconciler(s).Override(context.Background(), "txn-1", "groceries")
	require.NoError(t, err)

	assert.Equal(t, domain.CategoryGroceries, got.Category)
	assert.Equal(t, domain.MethodManual, got.Method)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, domain.CategoryFood, got.RulePrediction)
	assert.True(t, got.IsPinned())

	applied, err := s.SaveCategorization(context.Background(), "txn-1", domain.Assignment{
		Category: domain.CategoryOther, Method: domain.MethodML,
	})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestOverride_InvalidCategory(t *testing.T) {
	s := seeded(t)
	_, err := NewReconciler(s).Override(context.Background(), "txn-1", "Crypto")
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidCategory))

	txn, err := s.GetTransaction(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MethodRule, txn.Method)
	assert.Equal(t, domain.CategoryFood, txn.Category)
}

func TestOverride_UnknownTransaction(t *testing.T) {
	_, err := NewReconciler(seeded(t)).Override(context.Background(), "txn-404", "Food")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestOverride_Repeatable(t *testing.T) {
	s := seeded(t)
	r := NewReconciler(s)
	_, err := r.Override(context.Background(), "txn-1", "Health")
	require.NoError(t, err)
	got, err := r.Override(context.Background(), "txn-1", "Travel")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryTravel, got.Category)
}
