package pipeline

import (
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-categorizer/internal/domain"
)

var (
	// markerPattern matches descriptions of lines that carry no money movement.
	markerPattern = regexp.MustCompile(`(?i)\b(opening|closing)\s+balance\b|\bbalance\s+(b/?f|c/?f|forward)\b|\b(brought|carried)\s+forward\b|^\s*(b/f|c/f)\b`)

	drCrTag    = regexp.MustCompile(`(?i)\(?\s*\b(dr|cr)\b\.?\s*\)?\s*$`)
	whitespace = regexp.MustCompile(`\s+`)
)

// IsMarker reports whether a description denotes a non-monetary statement line.
func IsMarker(description string) bool {
	return markerPattern.MatchString(description)
}

// Validate coerces one raw row. It never fails: every problem is recorded on
// the returned row and the caller decides what to do with rejected rows.
func Validate(raw domain.RawRow, layouts []string) domain.ValidatedRow {
	row := domain.ValidatedRow{
		RowNumber:   raw.RowNumber,
		Description: cleanDescription(raw.Description),
	}

	date, err := parseDate(raw.Date, layouts)
	if err != nil {
		row.AddError(domain.CodeInvalidDate, truncate(err.Error()))
	} else {
		row.Date = date
	}

	if row.Description == "" {
		row.AddError(domain.CodeEmptyDescription, "description is empty")
	}
	row.Marker = row.Description != "" && IsMarker(row.Description)

	debit, credit, err := parseAmounts(raw)
	if err != nil {
		row.AddError(domain.CodeMissingAmount, truncate(err.Error()))
	}
	if !domain.IsZero(debit) && !domain.IsZero(credit) {
		row.Debit, row.Credit = debit, credit
		row.AddError(domain.CodeAmbiguousAmount,
			fmt.Sprintf("both debit %s and credit %s are set", domain.FormatAmount(debit), domain.FormatAmount(credit)))
	} else {
		if !domain.IsZero(debit) {
			row.Debit = debit
		}
		if !domain.IsZero(credit) {
			row.Credit = credit
		}
		if row.Debit == nil && row.Credit == nil && !row.Marker && err == nil {
			row.AddError(domain.CodeMissingAmount, "neither debit nor credit is set")
		}
	}

	// An unreadable balance is treated as missing so reconciliation can fill it.
	balance, err := domain.ParseAmount(raw.Balance)
	if err != nil {
		row.AddWarning(domain.CodeUnreadableBalance, truncate("balance ignored: "+err.Error()))
	} else {
		row.Balance = balance
	}

	return row
}

// ValidateAll validates every row and returns them in row_number order. Rows
// without a row number are numbered as NumberRows does. Every row after the
// first to use a row_number is rejected with DUPLICATE_ROW.
func ValidateAll(raws []domain.RawRow, layouts []string) []domain.ValidatedRow {
	numbered := NumberRows(raws)
	rows := make([]domain.ValidatedRow, 0, len(numbered))
	for _, raw := range numbered {
		rows = append(rows, Validate(raw, layouts))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].RowNumber < rows[j].RowNumber
	})
	for i := 1; i < len(rows); i++ {
		if rows[i].RowNumber == rows[i-1].RowNumber {
			rows[i].AddError(domain.CodeDuplicateRow,
				fmt.Sprintf("row_number %d is already used by an earlier row", rows[i].RowNumber))
		}
	}
	return rows
}

// NumberRows returns a copy of raws in which every row without a positive
// row_number is numbered. When no row is numbered the rows are numbered by
// position; otherwise unnumbered rows continue after the highest explicit
// number, so generated numbers never collide with given ones.
func NumberRows(raws []domain.RawRow) []domain.RawRow {
	out := make([]domain.RawRow, len(raws))
	copy(out, raws)

	highest := 0
	for _, r := range out {
		if r.RowNumber > highest {
			highest = r.RowNumber
		}
	}
	for i := range out {
		if out[i].RowNumber > 0 {
			continue
		}
		if highest == 0 {
			out[i].RowNumber = i + 1
			continue
		}
		highest++
		out[i].RowNumber = highest
	}
	return out
}

func parseDate(s string, layouts []string) (civil.Date, error) {
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" {
		return civil.Date{}, fmt.Errorf("date is empty")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("date %q matches none of %d known formats", s, len(layouts))
}

// parseAmounts reads the debit and credit columns, falling back to a single
// signed or Dr/Cr tagged amount column. Column values are taken as magnitudes.
func parseAmounts(raw domain.RawRow) (debit, credit *big.Rat, err error) {
	debit, derr := domain.ParseAmount(raw.Debit)
	credit, cerr := domain.ParseAmount(raw.Credit)
	switch {
	case derr != nil:
		return nil, credit, fmt.Errorf("debit: %w", derr)
	case cerr != nil:
		return debit, nil, fmt.Errorf("credit: %w", cerr)
	}

	if debit == nil && credit == nil && strings.TrimSpace(raw.Amount) != "" {
		return splitTaggedAmount(raw.Amount)
	}
	return abs(debit), abs(credit), nil
}

// splitTaggedAmount handles "1,200.00 (Dr)", "500 CR" and signed amounts.
func splitTaggedAmount(s string) (debit, credit *big.Rat, err error) {
	s = strings.TrimSpace(s)
	tag := ""
	if m := drCrTag.FindStringSubmatch(s); m != nil {
		tag = strings.ToUpper(m[1])
		s = strings.TrimSpace(s[:len(s)-len(m[0])])
	}

	amount, err := domain.ParseAmount(s)
	if err != nil {
		return nil, nil, fmt.Errorf("amount: %w", err)
	}
	if amount == nil {
		return nil, nil, nil
	}

	switch {
	case tag == "DR":
		return abs(amount), nil, nil
	case tag == "CR":
		return nil, abs(amount), nil
	case amount.Sign() < 0:
		return abs(amount), nil, nil
	default:
		return nil, amount, nil
	}
}

func abs(r *big.Rat) *big.Rat {
	if r == nil {
		return nil
	}
	return new(big.Rat).Abs(r)
}

func cleanDescription(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
	return whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}

// duplicateRowNumbers lists, in ascending order, every row_number that occurs
// more than once in rows.
func duplicateRowNumbers(rows []domain.RawRow) []int {
	seen := make(map[int]int, len(rows))
	for _, r := range rows {
		seen[r.RowNumber]++
	}
	var dups []int
	for n, c := range seen {
		if c > 1 {
			dups = append(dups, n)
		}
	}
	sort.Ints(dups)
	return dups
}

// truncate cuts s to at most MaxRejectReasonLen bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= MaxRejectReasonLen {
		return s
	}
	cut := MaxRejectReasonLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
