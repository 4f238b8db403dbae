package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dvloznov/statement-categorizer/internal/categorizer"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	calls int
	err   error
}

func (f *fakeArchiver) ArchiveStatement(ctx context.Context, statementID, filename string, data []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("gs://bucket/statements/%s/%s", statementID, filename), nil
}

func newService(t *testing.T, predictor categorizer.Predictor, opts ...Option) (*Service, *memory.Store) {
	t.Helper()
	rules, err := categorizer.NewRuleSet(categorizer.DefaultRules(), categorizer.DefaultRuleConfidence)
	require.NoError(t, err)
	s := memory.NewStore()
	engine := categorizer.NewEngine(s, rules, predictor, categorizer.Config{})
	return NewService(s, engine, opts...), s
}

const sampleCSV = `Date,Narration,Debit,Credit,Balance
01/03/2024,OPENING BALANCE,,,1000.00
02/03/2024,UPI/412/PAY/SWIGGY/YESB,200.00,,
03/03/2024,REFUND FROM AMAZON,,50.00,850.00
04/03/2024,,10.00,,840.00
05/03/2024,MYSTERY PAYEE,5.00,5.00,
`

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	arch := &fakeArchiver{}
	svc, s := newService(t, categorizer.Unavailable, WithArchiver(arch))

	st, err := svc.UploadCSV(ctx, "", "HDFC-statement-march.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, domain.BankHDFC, st.Bank)
	assert.Equal(t, 5, st.RowCount)
	assert.Equal(t, domain.StatementUploaded, st.Status)
	assert.Equal(t, 1, arch.calls)
	assert.Contains(t, st.ArchiveURI, st.StatementID)

	pv, err := svc.Preview(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, 5, pv.Total)
	assert.Equal(t, 3, pv.Valid)
	assert.Equal(t, 2, pv.Rejected)
	require.Len(t, pv.Preview, 3)
	assert.True(t, pv.Preview[1].IsRepaired)
	assert.Equal(t, "800.00", domain.FormatAmount(pv.Preview[1].Balance))
	require.Len(t, pv.RejectedRows, 2)
	assert.True(t, pv.RejectedRows[0].HasError(domain.CodeEmptyDescription))
	assert.True(t, pv.RejectedRows[1].HasError(domain.CodeAmbiguousAmount))

	imp, err := svc.Import(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, 3, imp.Count)
	assert.Equal(t, 2, imp.Skipped)

	again, err := svc.Import(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, imp.Count, again.Count)
	assert.Zero(t, again.Inserted)

	got, err := s.GetStatement(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatementImported, got.Status)

	res, err := svc.Categorize(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 2, res.Rule)
	assert.Equal(t, 1, res.Degraded)

	txns, err := svc.Transactions(ctx, st.StatementID)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, domain.CategoryOther, txns[0].Category)
	assert.Equal(t, domain.CategoryFood, txns[1].Category)
	assert.Equal(t, domain.CategoryRefund, txns[2].Category)

	_, err = svc.Override(ctx, txns[1].TransactionID, "Groceries")
	require.NoError(t, err)
	_, err = svc.Categorize(ctx, st.StatementID)
	require.NoError(t, err)

	pinned, err := s.GetTransaction(ctx, txns[1].TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryGroceries, pinned.Category)
	assert.Equal(t, domain.MethodManual, pinned.Method)

	got, err = s.GetStatement(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatementCategorized, got.Status)
}

func TestService_PreviewCapsValidRows(t *testing.T) {
	svc, _ := newService(t, nil)
	rows := make([]domain.RawRow, 15)
	for i := range rows {
		rows[i] = domain.RawRow{Date: "01/03/2024", Description: "ROW", Credit: "1"}
	}
	st, err := svc.Upload(context.Background(), Upload{Bank: "ICICI", Rows: rows})
	require.NoError(t, err)

	pv, err := svc.Preview(context.Background(), st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, 15, pv.Valid)
	assert.Len(t, pv.Preview, PreviewSize)
	assert.True(t, pv.Unanchored)
	assert.NotNil(t, pv.RejectedRows)
}

func TestService_UploadErrors(t *testing.T) {
	svc, _ := newService(t, nil, WithArchiver(&fakeArchiver{err: errors.New("bucket gone")}))
	ctx := context.Background()

	_, err := svc.Upload(ctx, Upload{})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput))

	_, err = svc.Upload(ctx, Upload{Bank: "MONZO", Rows: []domain.RawRow{{Description: "x"}}})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput))

	_, err = svc.UploadCSV(ctx, "HDFC", "x.csv", strings.NewReader("a,b\n1,2\n"))
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput))

	_, err = svc.UploadCSV(ctx, "HDFC", "x.csv", strings.NewReader(sampleCSV))
	assert.ErrorContains(t, err, "bucket gone")
}

func TestService_UploadRejectsDuplicateRowNumbers(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Upload(ctx, Upload{Bank: "HDFC", Rows: []domain.RawRow{
		{RowNumber: 1, Date: "01/03/2024", Description: "A", Debit: "1"},
		{RowNumber: 2, Date: "02/03/2024", Description: "B", Debit: "2"},
		{RowNumber: 2, Date: "03/03/2024", Description: "C", Debit: "3"},
	}})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput))
	assert.ErrorContains(t, err, "[2]")

	all, err := svc.Statements(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_UploadMixedNumberingKeepsEveryRow(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	st, err := svc.Upload(ctx, Upload{Bank: "HDFC", Rows: []domain.RawRow{
		{RowNumber: 2, Date: "02/03/2024", Description: "B", Debit: "2"},
		{Date: "03/03/2024", Description: "C", Debit: "3"},
		{RowNumber: 1, Date: "01/03/2024", Description: "A", Debit: "1"},
	}})
	require.NoError(t, err)

	pv, err := svc.Preview(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, 3, pv.Valid)
	assert.Zero(t, pv.Rejected)

	imp, err := svc.Import(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, 3, imp.Count)
	assert.Zero(t, imp.Skipped)
}

func TestService_UnreadableBalanceIsVisibleInPreview(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	st, err := svc.Upload(ctx, Upload{Bank: "HDFC", Rows: []domain.RawRow{
		{Date: "01/03/2024", Description: "A", Credit: "100", Balance: "100"},
		{Date: "02/03/2024", Description: "B", Debit: "40", Balance: "#REF!"},
	}})
	require.NoError(t, err)

	pv, err := svc.Preview(ctx, st.StatementID)
	require.NoError(t, err)
	require.Len(t, pv.Preview, 2)
	row := pv.Preview[1]
	assert.True(t, row.IsRepaired)
	assert.Equal(t, "60.00", domain.FormatAmount(row.Balance))
	require.Len(t, row.Warnings, 1)
	assert.Equal(t, domain.CodeUnreadableBalance, row.Warnings[0].Code)

	b, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"warnings":[{"code":"UNREADABLE_BALANCE"`)
}

func TestService_UnknownStatement(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Preview(ctx, "missing")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
	_, err = svc.Import(ctx, "missing")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
	_, err = svc.Categorize(ctx, "missing")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
	_, err = svc.Transactions(ctx, "missing")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestService_CategorizeBeforeImportKeepsStatus(t *testing.T) {
	svc, s := newService(t, nil)
	ctx := context.Background()
	st, err := svc.Upload(ctx, Upload{Bank: "SBI", Rows: []domain.RawRow{{Date: "1 Mar 2024", Description: "X", Debit: "1"}}})
	require.NoError(t, err)

	res, err := svc.Categorize(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Zero(t, res.Count)

	got, err := s.GetStatement(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatementUploaded, got.Status)
}

func TestService_Process(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	st, err := svc.UploadCSV(ctx, "HDFC", "x.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	state, err := svc.Process(ctx, st.StatementID)
	require.NoError(t, err)
	assert.Equal(t, 3, state.Imported.Count)
	assert.Equal(t, 3, state.Categorized.Count)
	assert.Equal(t, domain.StatementCategorized, state.Statement.Status)
}
