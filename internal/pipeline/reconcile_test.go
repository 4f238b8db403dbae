package pipeline

import (
	"testing"

	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_RepairsMissingBalance(t *testing.T) {
	rows := []domain.ValidatedRow{
		{RowNumber: 1, Description: "OPENING BALANCE", Marker: true, Balance: domain.MustAmount("1000")},
		{RowNumber: 2, Description: "ATM WDL", Debit: domain.MustAmount("200")},
		{RowNumber: 3, Description: "REFUND", Credit: domain.MustAmount("50"), Balance: domain.MustAmount("850")},
	}

	res := Reconcile(rows)
	require.Len(t, res.Rows, 3)

	assert.False(t, res.Unanchored)
	assert.Equal(t, 1, res.Repaired)
	assert.Zero(t, res.Mismatches)

	assert.Empty(t, res.Rows[0].Errors)
	assert.False(t, res.Rows[0].IsRepaired)

	assert.Equal(t, "800.00", domain.FormatAmount(res.Rows[1].Balance))
	assert.True(t, res.Rows[1].IsRepaired)
	assert.Empty(t, res.Rows[1].Errors)

	assert.Equal(t, "850.00", domain.FormatAmount(res.Rows[2].Balance))
	assert.False(t, res.Rows[2].IsRepaired)
	assert.Empty(t, res.Rows[2].Errors)

	// Input is untouched.
	assert.Nil(t, rows[1].Balance)
	assert.False(t, rows[1].IsRepaired)
}

func TestReconcile_MismatchTrustsPrintedBalance(t *testing.T) {
	res := Reconcile([]domain.ValidatedRow{
		{RowNumber: 1, Debit: domain.MustAmount("100"), Balance: domain.MustAmount("900")},
		{RowNumber: 2, Debit: domain.MustAmount("100"), Balance: domain.MustAmount("750")},
		{RowNumber: 3, Debit: domain.MustAmount("50")},
	})

	assert.Equal(t, 1, res.Mismatches)
	assert.True(t, res.Rows[1].HasError(domain.CodeBalanceMismatch))
	assert.Contains(t, res.Rows[1].Errors[0].Reason, "800.00")
	assert.Equal(t, "700.00", domain.FormatAmount(res.Rows[2].Balance))
	assert.True(t, res.Rows[2].IsRepaired)
}

func TestReconcile_Epsilon(t *testing.T) {
	res := Reconcile([]domain.ValidatedRow{
		{RowNumber: 1, Credit: domain.MustAmount("10"), Balance: domain.MustAmount("10")},
		{RowNumber: 2, Credit: domain.MustAmount("0.333"), Balance: domain.MustAmount("10.33")},
		{RowNumber: 3, Credit: domain.MustAmount("1"), Balance: domain.MustAmount("11.34")},
	})

	assert.False(t, res.Rows[1].HasError(domain.CodeBalanceMismatch), "0.003 off is within epsilon")
	assert.True(t, res.Rows[2].HasError(domain.CodeBalanceMismatch), "0.01 off is a mismatch")
}

func TestReconcile_BackfillsRowsBeforeAnchor(t *testing.T) {
	res := Reconcile([]domain.ValidatedRow{
		{RowNumber: 1, Debit: domain.MustAmount("100")},
		{RowNumber: 2, Credit: domain.MustAmount("40"), Balance: domain.MustAmount("940")},
	})

	assert.False(t, res.Unanchored)
	assert.Equal(t, "900.00", domain.FormatAmount(res.Rows[0].Balance))
	assert.True(t, res.Rows[0].IsRepaired)
	assert.Empty(t, res.Rows[1].Errors)
}

func TestReconcile_Unanchored(t *testing.T) {
	res := Reconcile([]domain.ValidatedRow{
		{RowNumber: 1, Credit: domain.MustAmount("500")},
		{RowNumber: 2, Debit: domain.MustAmount("120.50")},
	})

	assert.True(t, res.Unanchored)
	assert.Equal(t, "500.00", domain.FormatAmount(res.Rows[0].Balance))
	assert.Equal(t, "379.50", domain.FormatAmount(res.Rows[1].Balance))
	assert.Equal(t, 2, res.Repaired)
}

func TestReconcile_Unrepairable(t *testing.T) {
	missing := domain.ValidatedRow{RowNumber: 2, Description: "???"}
	missing.AddError(domain.CodeMissingAmount, "neither debit nor credit is set")

	res := Reconcile([]domain.ValidatedRow{
		{RowNumber: 1, Credit: domain.MustAmount("10"), Balance: domain.MustAmount("10")},
		missing,
		{RowNumber: 3, Debit: domain.MustAmount("5"), Balance: domain.MustAmount("5")},
	})

	assert.Equal(t, 1, res.Unrepairable)
	assert.True(t, res.Rows[1].HasError(domain.CodeUnrepairable))
	assert.True(t, res.Rows[1].HasError(domain.CodeMissingAmount))
	assert.Empty(t, res.Rows[2].Errors)
	assert.Len(t, missing.Errors, 1)
}

func TestReconcile_AmbiguousRowDoesNotMoveBalance(t *testing.T) {
	ambiguous := domain.ValidatedRow{RowNumber: 2, Debit: domain.MustAmount("30"), Credit: domain.MustAmount("30")}
	ambiguous.AddError(domain.CodeAmbiguousAmount, "both set")

	res := Reconcile([]domain.ValidatedRow{
		{RowNumber: 1, Credit: domain.MustAmount("100"), Balance: domain.MustAmount("100")},
		ambiguous,
		{RowNumber: 3, Debit: domain.MustAmount("10")},
	})

	assert.True(t, res.Rows[1].HasError(domain.CodeUnrepairable))
	assert.Equal(t, "90.00", domain.FormatAmount(res.Rows[2].Balance))
}

func TestReconcile_SortsByRowNumber(t *testing.T) {
	res := Reconcile([]domain.ValidatedRow{
		{RowNumber: 2, Debit: domain.MustAmount("10")},
		{RowNumber: 1, Credit: domain.MustAmount("100"), Balance: domain.MustAmount("100")},
	})
	assert.Equal(t, 1, res.Rows[0].RowNumber)
	assert.Equal(t, "90.00", domain.FormatAmount(res.Rows[1].Balance))
}

func TestReconcile_DuplicateRowIsLeftOut(t *testing.T) {
	rows := ValidateAll([]domain.RawRow{
		{RowNumber: 1, Date: "01/03/2024", Description: "OPENING BALANCE", Balance: "1000"},
		{RowNumber: 2, Date: "02/03/2024", Description: "ATM WDL", Debit: "200"},
		{RowNumber: 2, Date: "02/03/2024", Description: "ATM WDL", Debit: "200", Balance: "5"},
		{RowNumber: 3, Date: "03/03/2024", Description: "REFUND", Credit: "50", Balance: "850"},
	}, DateLayouts(domain.BankHDFC))

	res := Reconcile(rows)
	require.Len(t, res.Rows, 4)
	assert.Zero(t, res.Mismatches)
	assert.Equal(t, "800.00", domain.FormatAmount(res.Rows[1].Balance))
	assert.Equal(t, []domain.ErrorCode{domain.CodeDuplicateRow}, codes(res.Rows[2]))
	assert.Empty(t, res.Rows[3].Errors)
}
