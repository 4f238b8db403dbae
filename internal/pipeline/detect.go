package pipeline

import (
	"regexp"
	"strings"

	"github.com/dvloznov/statement-categorizer/internal/domain"
)

// bankSignatures are checked in order; the first hit wins.
var bankSignatures = []struct {
	bank    domain.Bank
	pattern *regexp.Regexp
}{
	{domain.BankHDFC, regexp.MustCompile(`(?i)\bhdfc\b|hdfc\s*bank|hdfc0\d{6}`)},
	{domain.BankKotak, regexp.MustCompile(`(?i)\bkotak\b|kotak\s*mahindra|kkbk0\d{6}`)},
	{domain.BankSBI, regexp.MustCompile(`(?i)state\s+bank\s+of\s+india|\bsbi\b|sbin0\d{6}`)},
	{domain.BankICICI, regexp.MustCompile(`(?i)\bicici\b|icici\s*bank|icic0\d{6}`)},
}

// DetectBank guesses the issuing bank from any statement text available before
// parsing: the file name, a header line or the first few descriptions.
func DetectBank(texts ...string) domain.Bank {
	joined := strings.Join(texts, "\n")
	for _, sig := range bankSignatures {
		if sig.pattern.MatchString(joined) {
			return sig.bank
		}
	}
	return domain.BankUnknown
}

var (
	dayFirstNumeric = []string{
		"2-1-2006", "2/1/2006", "2.1.2006",
		"2-1-06", "2/1/06", "2.1.06",
	}
	dayFirstNamed = []string{
		"2-Jan-2006", "2 Jan 2006", "2-January-2006", "2 January 2006",
		"2-Jan-06", "2 Jan 06", "2-January-06", "2 January 06",
	}
	isoLayouts = []string{"2006-01-02", "2006/01/02"}
)

// DateLayouts returns the time layouts tried for a bank's statement dates, most
// likely first. Unknown banks get every layout.
func DateLayouts(bank domain.Bank) []string {
	var layouts []string
	switch bank {
	case domain.BankSBI:
		layouts = append(layouts, dayFirstNamed...)
		layouts = append(layouts, dayFirstNumeric...)
	case domain.BankHDFC, domain.BankKotak, domain.BankICICI:
		layouts = append(layouts, dayFirstNumeric...)
		layouts = append(layouts, dayFirstNamed...)
	default:
		layouts = append(layouts, dayFirstNumeric...)
		layouts = append(layouts, dayFirstNamed...)
	}
	return append(layouts, isoLayouts...)
}
