package pipeline

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/dvloznov/statement-categorizer/internal/domain"
)

// BalanceEpsilon is the largest difference between a computed and a printed
// balance that still counts as consistent. Differences of a full minor unit or
// more are reported as BALANCE_MISMATCH.
var BalanceEpsilon = big.NewRat(1, 100)

// ReconcileResult is the outcome of a reconciliation fold.
type ReconcileResult struct {
	Rows []domain.ValidatedRow
	// Unanchored is set when no row carried a balance and the fold started at 0.
	Unanchored   bool
	Repaired     int
	Mismatches   int
	Unrepairable int
}

// Reconcile walks rows in row_number order carrying a running balance. Printed
// balances are checked and then trusted; missing balances are computed from the
// amount. The input slice is not modified.
//
// The fold is anchored on the first printed balance. Rows before the anchor are
// filled by deriving the opening balance from the anchor and the amounts
// leading up to it.
func Reconcile(rows []domain.ValidatedRow) ReconcileResult {
	out := make([]domain.ValidatedRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RowNumber < out[j].RowNumber
	})
	for i := range out {
		out[i].Errors = append([]domain.RowError(nil), out[i].Errors...)
	}

	res := ReconcileResult{Rows: out}
	running := openingBalance(out)
	if running == nil {
		res.Unanchored = true
		running = new(big.Rat)
	}

	for i := range out {
		row := &out[i]
		if row.HasError(domain.CodeDuplicateRow) {
			continue
		}
		usable := amountUsable(row)

		switch {
		case row.Balance != nil:
			if usable {
				expected := new(big.Rat).Add(running, domain.Net(row.Debit, row.Credit))
				diff := new(big.Rat).Sub(expected, row.Balance)
				if diff.Abs(diff).Cmp(BalanceEpsilon) >= 0 {
					row.AddError(domain.CodeBalanceMismatch, fmt.Sprintf(
						"running balance gives %s, statement shows %s",
						expected.FloatString(2), row.Balance.FloatString(2)))
					res.Mismatches++
				}
			}
			running = new(big.Rat).Set(row.Balance)

		case usable:
			running = new(big.Rat).Add(running, domain.Net(row.Debit, row.Credit))
			row.Balance = new(big.Rat).Set(running)
			row.IsRepaired = true
			res.Repaired++

		default:
			reason := "balance and amount are both missing"
			if row.HasAmount() {
				reason = "balance is missing and the amount is unusable"
			}
			row.AddError(domain.CodeUnrepairable, reason)
			res.Unrepairable++
		}
	}

	return res
}

// openingBalance derives the balance before the first row from the first
// printed balance, or returns nil when no row has one.
func openingBalance(rows []domain.ValidatedRow) *big.Rat {
	for i := range rows {
		if rows[i].Balance == nil || rows[i].HasError(domain.CodeDuplicateRow) {
			continue
		}
		opening := new(big.Rat).Set(rows[i].Balance)
		for j := i; j >= 0; j-- {
			if amountUsable(&rows[j]) && !rows[j].HasError(domain.CodeDuplicateRow) {
				opening.Sub(opening, domain.Net(rows[j].Debit, rows[j].Credit))
			}
		}
		return opening
	}
	return nil
}

// amountUsable reports whether a row's amount can move the running balance.
func amountUsable(row *domain.ValidatedRow) bool {
	if row.HasError(domain.CodeAmbiguousAmount) || row.HasError(domain.CodeMissingAmount) {
		return false
	}
	return row.HasAmount()
}
