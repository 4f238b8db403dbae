package domain

import (
	"encoding/json"
	"fmt"
	"math/big"

	"cloud.google.com/go/civil"
)

// RawRow is one statement line as produced by the upstream extractor.
// Every field is kept as extracted text; nothing is trusted yet.
type RawRow struct {
	RowNumber   int    `json:"row_number"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Debit       string `json:"debit,omitempty"`
	Credit      string `json:"credit,omitempty"`
	Balance     string `json:"balance,omitempty"`
	// Amount holds a single signed or Dr/Cr tagged amount column when the bank
	// does not split debits and credits.
	Amount string `json:"amount,omitempty"`
}

// ValidatedRow is a RawRow after coercion. Debit and Credit are mutually
// exclusive; both nil marks a zero-amount row. A row with Errors never reaches
// import.
type ValidatedRow struct {
	RowNumber   int
	Date        civil.Date
	Description string
	Debit       *big.Rat
	Credit      *big.Rat
	Balance     *big.Rat
	IsRepaired  bool
	// Marker is set for non-monetary lines such as an opening balance.
	Marker   bool
	Errors   []RowError
	Warnings []RowError
}

// Valid reports whether the row carries no errors.
func (r *ValidatedRow) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends code unless the row already carries it.
func (r *ValidatedRow) AddError(code ErrorCode, reason string) {
	if r.HasError(code) {
		return
	}
	r.Errors = append(r.Errors, RowError{Code: code, Reason: reason})
}

// AddWarning records a non-rejecting note on the row.
func (r *ValidatedRow) AddWarning(code ErrorCode, reason string) {
	r.Warnings = append(r.Warnings, RowError{Code: code, Reason: reason})
}

// HasError reports whether the row carries code.
func (r *ValidatedRow) HasError(code ErrorCode) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// HasAmount reports whether the row's amount is known. Marker rows count as a
// known zero amount.
func (r *ValidatedRow) HasAmount() bool {
	return r.Debit != nil || r.Credit != nil || r.Marker
}

// MarshalJSON renders the row the way the preview endpoint returns it.
func (r ValidatedRow) MarshalJSON() ([]byte, error) {
	var date *string
	if r.Date.IsValid() {
		s := r.Date.String()
		date = &s
	}
	errs := r.Errors
	if errs == nil {
		errs = []RowError{}
	}
	return json.Marshal(struct {
		RowNumber   int        `json:"row_number"`
		Date        *string    `json:"date"`
		Description string     `json:"description"`
		Debit       *string    `json:"debit"`
		Credit      *string    `json:"credit"`
		Balance     *string    `json:"balance"`
		IsRepaired  bool       `json:"is_repaired"`
		Errors      []RowError `json:"errors"`
		Warnings    []RowError `json:"warnings,omitempty"`
	}{
		RowNumber:   r.RowNumber,
		Date:        date,
		Description: r.Description,
		Debit:       amountPtr(r.Debit),
		Credit:      amountPtr(r.Credit),
		Balance:     amountPtr(r.Balance),
		IsRepaired:  r.IsRepaired,
		Errors:      errs,
		Warnings:    r.Warnings,
	})
}

// UnmarshalJSON accepts amounts and dates as JSON strings or numbers, so
// {"debit": 200} and {"debit": "200.00"} decode alike.
func (r *RawRow) UnmarshalJSON(b []byte) error {
	var aux struct {
		RowNumber   int             `json:"row_number"`
		Date        json.RawMessage `json:"date"`
		Description json.RawMessage `json:"description"`
		Debit       json.RawMessage `json:"debit"`
		Credit      json.RawMessage `json:"credit"`
		Balance     json.RawMessage `json:"balance"`
		Amount      json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	fields := []struct {
		raw json.RawMessage
		dst *string
	}{
		{aux.Date, &r.Date},
		{aux.Description, &r.Description},
		{aux.Debit, &r.Debit},
		{aux.Credit, &r.Credit},
		{aux.Balance, &r.Balance},
		{aux.Amount, &r.Amount},
	}
	r.RowNumber = aux.RowNumber
	for _, f := range fields {
		s, err := lenientString(f.raw)
		if err != nil {
			return err
		}
		*f.dst = s
	}
	return nil
}

func lenientString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("RawRow: expected string or number, got %s", raw)
	}
	return n.String(), nil
}
