package domain

import (
	"fmt"
	"strings"
	"time"
)

// Bank is a supported statement source.
type Bank string

const (
	BankHDFC    Bank = "HDFC"
	BankKotak   Bank = "KOTAK"
	BankSBI     Bank = "SBI"
	BankICICI   Bank = "ICICI"
	BankUnknown Bank = "UNKNOWN"
)

// Banks lists every supported bank, UNKNOWN last.
var Banks = []Bank{BankHDFC, BankKotak, BankSBI, BankICICI, BankUnknown}

// ParseBank resolves a declared bank name. An empty name yields BankUnknown.
func ParseBank(name string) (Bank, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "" {
		return BankUnknown, nil
	}
	for _, b := range Banks {
		if string(b) == n {
			return b, nil
		}
	}
	return "", &Error{Code: CodeInvalidInput, Message: fmt.Sprintf("unsupported bank %q", name)}
}

// StatementStatus tracks how far a statement has travelled through the pipeline.
type StatementStatus string

const (
	StatementUploaded    StatementStatus = "UPLOADED"
	StatementImported    StatementStatus = "IMPORTED"
	StatementCategorized StatementStatus = "CATEGORIZED"
)

var statusRank = map[StatementStatus]int{
	StatementUploaded:    1,
	StatementImported:    2,
	StatementCategorized: 3,
}

// Before reports whether s is an earlier lifecycle stage than other. An empty
// status is earlier than every stage.
func (s StatementStatus) Before(other StatementStatus) bool {
	return statusRank[s] < statusRank[other]
}

// Statement groups the rows uploaded together.
type Statement struct {
	StatementID    string          `json:"statement_id"`
	Bank           Bank            `json:"bank"`
	RowCount       int             `json:"row_count"`
	CreatedAt      time.Time       `json:"created_at"`
	SourceFilename string          `json:"source_filename,omitempty"`
	ArchiveURI     string          `json:"archive_uri,omitempty"`
	Status         StatementStatus `json:"status"`
}
