package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategories(t *testing.T) {
	assert.Len(t, Categories, 17)
	seen := map[Category]bool{}
	for _, c := range Categories {
		assert.False(t, seen[c], "duplicate %s", c)
		seen[c] = true
		assert.True(t, c.IsValid())
	}
	assert.Equal(t, len(Categories), len(CategoryNames()))
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"Food", CategoryFood},
		{" groceries ", CategoryGroceries},
		{"internal transfer", CategoryInternalTransfer},
		{"Internal-Transfer", CategoryInternalTransfer},
		{"atm", CategoryATM},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseCategory("Crypto")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidCategory))
	assert.False(t, Category("food").IsValid())
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		nil  bool
		err  bool
	}{
		{in: "1,234.50", want: "1234.50"},
		{in: "₹ 200", want: "200.00"},
		{in: "-50.00", want: "-50.00"},
		{in: "(75.10)", want: "-75.10"},
		{in: "", nil: true},
		{in: " - ", nil: true},
		{in: "NaN", nil: true},
		{in: "abc", err: true},
		{in: "1.2.3", err: true},
		{in: "Rs. 1,000", want: "1000.00"},
		{in: "INR 42.5", want: "42.50"},
		{in: "+7", want: "7.00"},
		{in: "05/03/2024", err: true},
		{in: "12abc", err: true},
		{in: "1e5", err: true},
		{in: "1-2", err: true},
		{in: "-", nil: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			switch {
			case tt.err:
				assert.Error(t, err)
			case tt.nil:
				assert.NoError(t, err)
				assert.Nil(t, got)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, FormatAmount(got))
			}
		})
	}
}

func TestNet(t *testing.T) {
	assert.Equal(t, "-200.00", FormatAmount(Net(MustAmount("200"), nil)))
	assert.Equal(t, "50.00", FormatAmount(Net(nil, MustAmount("50"))))
	assert.Equal(t, "0.00", FormatAmount(Net(nil, nil)))
}

func TestParseBank(t *testing.T) {
	b, err := ParseBank("kotak")
	require.NoError(t, err)
	assert.Equal(t, BankKotak, b)

	b, err = ParseBank("")
	require.NoError(t, err)
	assert.Equal(t, BankUnknown, b)

	_, err = ParseBank("MONZO")
	assert.True(t, IsCode(err, CodeInvalidInput))
}

func TestStatementStatusBefore(t *testing.T) {
	assert.True(t, StatementUploaded.Before(StatementImported))
	assert.True(t, StatementImported.Before(StatementCategorized))
	assert.False(t, StatementCategorized.Before(StatementImported))
	assert.False(t, StatementImported.Before(StatementImported))
	assert.True(t, StatementStatus("").Before(StatementUploaded))
}

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &Error{Code: CodeImportFailed, Message: "import failed", Cause: cause})

	assert.Equal(t, CodeImportFailed, CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorCode(""), CodeOf(cause))
	assert.Equal(t, "NOT_FOUND: transaction t1 not found", NotFound("transaction", "t1").Error())
}

func TestValidatedRow_AddErrorDedupes(t *testing.T) {
	var row ValidatedRow
	row.AddError(CodeMissingAmount, "first")
	row.AddError(CodeMissingAmount, "second")
	row.AddError(CodeInvalidDate, "bad")

	assert.Len(t, row.Errors, 2)
	assert.False(t, row.Valid())
	assert.True(t, row.HasError(CodeInvalidDate))
}

func TestValidatedRow_JSON(t *testing.T) {
	row := ValidatedRow{RowNumber: 2, Date: civil.Date{Year: 2024, Month: 3, Day: 2}, Description: "X", Debit: MustAmount("200"), Balance: MustAmount("800"), IsRepaired: true}
	b, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `{"row_number":2,"date":"2024-03-02","description":"X","debit":"200.00","credit":null,"balance":"800.00","is_repaired":true,"errors":[]}`, string(b))

	bad := ValidatedRow{RowNumber: 3}
	bad.AddError(CodeInvalidDate, "date is empty")
	b, err = json.Marshal(bad)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"date":null`)
	assert.Contains(t, string(b), `{"code":"INVALID_DATE","reason":"date is empty"}`)
}

func TestCategorizedTransaction_JSON(t *testing.T) {
	created := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	txn := CategorizedTransaction{
		Transaction: Transaction{
			TransactionID: "t1",
			StatementID:   "s1",
			RowNumber:     1,
			Date:          civil.Date{Year: 2024, Month: 3, Day: 1},
			Description:   "ZOMATO",
			Credit:        MustAmount("12.5"),
			CreatedAt:     created,
		},
	}

	b, err := json.Marshal(txn)
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Nil(t, got["category"])
	assert.Nil(t, got["method"])
	assert.Nil(t, got["debit"])
	assert.Equal(t, "12.50", got["credit"])
	assert.Equal(t, "2024-03-01", got["date"])
	assert.NotContains(t, got, "categorized_at")

	txn.Category, txn.Method, txn.Confidence, txn.RulePrediction = CategoryFood, MethodRule, 0.95, CategoryFood
	txn.CategorizedAt = &created
	b, err = json.Marshal(txn)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "Food", got["category"])
	assert.Equal(t, "RULE", got["method"])
	assert.Equal(t, 0.95, got["confidence"])
	assert.Nil(t, got["ml_prediction"])
	assert.Contains(t, got, "categorized_at")
}

func TestDecimalString(t *testing.T) {
	assert.Equal(t, "", DecimalString(nil))
	assert.Equal(t, "12.50", DecimalString(MustAmount("12.5")))
	assert.Equal(t, "0.333", DecimalString(MustAmount("0.333")))
	assert.Equal(t, "-7.00", DecimalString(MustAmount("-7")))
}

func TestRawRowUnmarshalLenient(t *testing.T) {
	var rows []RawRow
	err := json.Unmarshal([]byte(`[
		{"date": "01-03-2024", "description": "OPENING BALANCE", "balance": 1000},
		{"row_number": 7, "date": "02-03-2024", "description": "UPI", "debit": 200.5, "credit": null},
		{"date": "03-03-2024", "description": "NEFT", "credit": "50", "balance": "850.00"}
	]`), &rows)
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "1000", rows[0].Balance)
	assert.Equal(t, 7, rows[1].RowNumber)
	assert.Equal(t, "200.5", rows[1].Debit)
	assert.Empty(t, rows[1].Credit)
	assert.Equal(t, "850.00", rows[2].Balance)

	var bad RawRow
	assert.Error(t, json.Unmarshal([]byte(`{"debit": true}`), &bad))
}
