package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-categorizer/internal/domain"
)

// StatementRow mirrors the statements table.
type StatementRow struct {
	StatementID    string              `bigquery:"statement_id"`
	Bank           string              `bigquery:"bank"`
	RowCount       int64               `bigquery:"row_count"`
	CreatedAt      time.Time           `bigquery:"created_at"`
	SourceFilename bigquery.NullString `bigquery:"source_filename"`
	ArchiveURI     bigquery.NullString `bigquery:"archive_uri"`
	Status         string              `bigquery:"status"`
}

// RawRowParam is one element of the statement_rows insert parameter.
type RawRowParam struct {
	StatementID string `bigquery:"statement_id"`
	RowNumber   int64  `bigquery:"row_number"`
	RawDate     string `bigquery:"raw_date"`
	Description string `bigquery:"description"`
	Debit       string `bigquery:"debit"`
	Credit      string `bigquery:"credit"`
	Balance     string `bigquery:"balance"`
	Amount      string `bigquery:"amount"`
}

func (r *StatementRow) toDomain() *domain.Statement {
	return &domain.Statement{
		StatementID:    r.StatementID,
		Bank:           domain.Bank(r.Bank),
		RowCount:       int(r.RowCount),
		CreatedAt:      r.CreatedAt,
		SourceFilename: r.SourceFilename.StringVal,
		ArchiveURI:     r.ArchiveURI.StringVal,
		Status:         domain.StatementStatus(r.Status),
	}
}

func (r RawRowParam) toDomain() domain.RawRow {
	return domain.RawRow{
		RowNumber:   int(r.RowNumber),
		Date:        r.RawDate,
		Description: r.Description,
		Debit:       r.Debit,
		Credit:      r.Credit,
		Balance:     r.Balance,
		Amount:      r.Amount,
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
