package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/dvloznov/statement-categorizer/internal/logger"
)

// Summary aggregates the spending of one statement. Only debit rows count as
// spending; credits are left out.
type Summary struct {
	StatementID string `json:"statement_id"`
	Count       int    `json:"count"`
	Debit       string `json:"debit"`
	// Uncategorized counts debit rows that have no category yet. They are
	// included in Count and Debit but in no category bucket.
	Uncategorized int             `json:"uncategorized"`
	Categories    []CategorySpend `json:"categories"`
	Months        []MonthlySpend  `json:"months"`
}

// CategorySpend is the debit total and row count of one category.
type CategorySpend struct {
	Category domain.Category `json:"category"`
	Count    int             `json:"count"`
	Debit    string          `json:"debit"`
}

// MonthlySpend breaks one calendar month ("2024-03") down by category.
type MonthlySpend struct {
	Month      string          `json:"month"`
	Count      int             `json:"count"`
	Debit      string          `json:"debit"`
	Categories []CategorySpend `json:"categories"`
}

type spendBucket struct {
	count int
	debit *big.Rat
}

func (b *spendBucket) add(amount *big.Rat) {
	if b.debit == nil {
		b.debit = new(big.Rat)
	}
	b.count++
	b.debit.Add(b.debit, amount)
}

type monthBucket struct {
	spendBucket
	categories spendTable
}

type spendTable map[domain.Category]*spendBucket

func (t spendTable) add(c domain.Category, amount *big.Rat) {
	b, ok := t[c]
	if !ok {
		b = &spendBucket{}
		t[c] = b
	}
	b.add(amount)
}

// sorted lists the buckets by descending debit, ties broken by category name.
func (t spendTable) sorted() []CategorySpend {
	keys := make([]domain.Category, 0, len(t))
	for c := range t {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool {
		if cmp := t[keys[i]].debit.Cmp(t[keys[j]].debit); cmp != 0 {
			return cmp > 0
		}
		return keys[i] < keys[j]
	})

	out := make([]CategorySpend, 0, len(keys))
	for _, c := range keys {
		out = append(out, CategorySpend{Category: c, Count: t[c].count, Debit: domain.FormatAmount(t[c].debit)})
	}
	return out
}

// Summarize aggregates txns into per-category and per-month debit buckets.
func Summarize(statementID string, txns []*domain.CategorizedTransaction) *Summary {
	var total spendBucket
	uncategorized := 0
	categories := spendTable{}
	months := map[string]*monthBucket{}

	for _, t := range txns {
		if domain.IsZero(t.Debit) {
			continue
		}
		total.add(t.Debit)

		month := fmt.Sprintf("%04d-%02d", t.Date.Year, int(t.Date.Month))
		m, ok := months[month]
		if !ok {
			m = &monthBucket{categories: spendTable{}}
			months[month] = m
		}
		m.add(t.Debit)

		if t.Category == "" {
			uncategorized++
			continue
		}
		categories.add(t.Category, t.Debit)
		m.categories.add(t.Category, t.Debit)
	}

	s := &Summary{
		StatementID:   statementID,
		Count:         total.count,
		Debit:         domain.FormatAmount(zeroIfNil(total.debit)),
		Uncategorized: uncategorized,
		Categories:    categories.sorted(),
		Months:        make([]MonthlySpend, 0, len(months)),
	}
	for month, m := range months {
		s.Months = append(s.Months, MonthlySpend{
			Month:      month,
			Count:      m.count,
			Debit:      domain.FormatAmount(m.debit),
			Categories: m.categories.sorted(),
		})
	}
	sort.Slice(s.Months, func(i, j int) bool {
		return s.Months[i].Month < s.Months[j].Month
	})
	return s
}

func zeroIfNil(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return r
}

// Summary aggregates the categorized spending of a statement.
func (s *Service) Summary(ctx context.Context, statementID string) (*Summary, error) {
	txns, err := s.Transactions(ctx, statementID)
	if err != nil {
		return nil, err
	}
	sum := Summarize(statementID, txns)

	log := logger.ForStatement(logger.FromContext(ctx), statementID)
	log.Debug().
		Int("debits", sum.Count).
		Int("categories", len(sum.Categories)).
		Int("months", len(sum.Months)).
		Msg("Statement summarized")
	return sum, nil
}
