package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/statement-categorizer/internal/domain"
)

// column aliases seen in exported statements, matched case-insensitively after
// dropping spaces, dots and underscores.
var columnAliases = map[string][]string{
	"date":        {"date", "transactiondate", "txndate", "valuedate", "trandate", "postingdate"},
	"description": {"description", "narration", "particulars", "details", "remarks", "transactiondetails"},
	"debit":       {"debit", "debitamount", "withdrawal", "withdrawalamt", "withdrawalamount", "dr"},
	"credit":      {"credit", "creditamount", "deposit", "depositamt", "depositamount", "cr"},
	"balance":     {"balance", "closingbalance", "runningbalance", "balanceamt"},
	"amount":      {"amount", "transactionamount", "amt"},
}

// ErrNoHeader is returned when a CSV statement lacks a recognizable header row.
var ErrNoHeader = errors.New("statement has no recognizable header row")

// CSVStatement is the result of reading a CSV statement export.
type CSVStatement struct {
	Rows []domain.RawRow
	// Header is the raw header line, useful for bank detection.
	Header string
}

// ReadCSV reads a statement export into raw rows. Rows keep their position in
// the file as row_number. A malformed line becomes a row with empty fields so
// validation reports it instead of aborting the read.
func ReadCSV(r io.Reader) (*CSVStatement, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("ReadCSV: reading header: %w", err)
	}

	index := mapColumns(header)
	if _, ok := index["date"]; !ok {
		return nil, fmt.Errorf("ReadCSV: %w: no date column in %v", ErrNoHeader, header)
	}

	stmt := &CSVStatement{Header: strings.Join(header, ",")}
	rowNumber := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNumber++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stmt.Rows = append(stmt.Rows, domain.RawRow{RowNumber: rowNumber})
				continue
			}
			return nil, fmt.Errorf("ReadCSV: reading row %d: %w", rowNumber, err)
		}
		if blank(record) {
			rowNumber--
			continue
		}

		get := func(col string) string {
			if i, ok := index[col]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}
		stmt.Rows = append(stmt.Rows, domain.RawRow{
			RowNumber:   rowNumber,
			Date:        get("date"),
			Description: get("description"),
			Debit:       get("debit"),
			Credit:      get("credit"),
			Balance:     get("balance"),
			Amount:      get("amount"),
		})
	}

	return stmt, nil
}

func mapColumns(header []string) map[string]int {
	index := make(map[string]int)
	for i, h := range header {
		key := normalizeHeader(h)
		for col, aliases := range columnAliases {
			if _, taken := index[col]; taken {
				continue
			}
			for _, alias := range aliases {
				if key == alias {
					index[col] = i
				}
			}
		}
	}
	return index
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
	return strings.NewReplacer(" ", "", "_", "", ".", "", "(", "", ")", "", "-", "").Replace(h)
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
