package domain

import (
	"encoding/json"
	"math/big"
	"time"

	"cloud.google.com/go/civil"
)

// Method tags which stage produced a transaction's category.
type Method string

const (
	MethodRule   Method = "RULE"
	MethodML     Method = "ML"
	MethodManual Method = "MANUAL"
)

// ManualConfidence is the confidence of every manually assigned category.
const ManualConfidence = 1.0

// Transaction is one imported statement row. Only the category fields of
// CategorizedTransaction change after import.
type Transaction struct {
	TransactionID string     `json:"transaction_id"`
	StatementID   string     `json:"statement_id"`
	RowNumber     int        `json:"row_number"`
	Date          civil.Date `json:"date"`
	Description   string     `json:"description"`
	Debit         *big.Rat   `json:"-"`
	Credit        *big.Rat   `json:"-"`
	Balance       *big.Rat   `json:"-"`
	Merchant      string     `json:"merchant,omitempty"`
	IsRepaired    bool       `json:"is_repaired"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CategorizedTransaction is a Transaction plus its category assignment.
// Category and Method are empty until the first categorization run.
type CategorizedTransaction struct {
	Transaction

	Category       Category   `json:"category,omitempty"`
	Confidence     float64    `json:"confidence"`
	Method         Method     `json:"method,omitempty"`
	RulePrediction Category   `json:"rule_prediction,omitempty"`
	MLPrediction   Category   `json:"ml_prediction,omitempty"`
	CategorizedAt  *time.Time `json:"categorized_at,omitempty"`
}

// IsPinned reports whether automated categorization must leave t alone.
func (t *CategorizedTransaction) IsPinned() bool {
	return t.Method == MethodManual
}

// Assignment is the category payload written by a categorization run or an
// override. The method selects which payload fields are meaningful.
type Assignment struct {
	Category       Category
	Confidence     float64
	Method         Method
	RulePrediction Category
	MLPrediction   Category
}

// MarshalJSON renders amounts as two-decimal strings.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Debit   *string `json:"debit"`
		Credit  *string `json:"credit"`
		Balance *string `json:"balance"`
		Alias
	}{
		Debit:   amountPtr(t.Debit),
		Credit:  amountPtr(t.Credit),
		Balance: amountPtr(t.Balance),
		Alias:   Alias(t),
	})
}

// MarshalJSON flattens the embedded Transaction next to the category fields.
func (t CategorizedTransaction) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(t.Transaction)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}

	put := func(key string, v interface{}) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fields[key] = b
		return nil
	}
	nullable := func(c Category) interface{} {
		if c == "" {
			return nil
		}
		return c
	}

	if err := put("category", nullable(t.Category)); err != nil {
		return nil, err
	}
	if err := put("confidence", t.Confidence); err != nil {
		return nil, err
	}
	var method interface{}
	if t.Method != "" {
		method = t.Method
	}
	if err := put("method", method); err != nil {
		return nil, err
	}
	if err := put("rule_prediction", nullable(t.RulePrediction)); err != nil {
		return nil, err
	}
	if err := put("ml_prediction", nullable(t.MLPrediction)); err != nil {
		return nil, err
	}
	if t.CategorizedAt != nil {
		if err := put("categorized_at", t.CategorizedAt); err != nil {
			return nil, err
		}
	}
	return json.Marshal(fields)
}
