package categorizer

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// UPI narrations look like UPI/<ref>/<vpa or note>/<payee>/...
	upiPayee = regexp.MustCompile(`(?i)upi[/\-][^/\-]+[/\-][^/\-]+[/\-]([^/\-]+)`)
	// Card swipes look like POS 123456XXXXXX1234 MERCHANT NAME CHENNAI.
	posMerchant = regexp.MustCompile(`(?i)pos\s*[\dx*]+\s*([a-z][a-z .&']{2,}?)\s*(?:che|ban|blr|mum|del|hyd|pun|kol)[a-z]*\b`)
	// Bank transfers look like NEFT/<ref>/<beneficiary>/...
	transferName = regexp.MustCompile(`(?i)(?:imps|neft|rtgs)[/\-][^/\-]+[/\-]([^/\-]+)`)

	nonLetters  = regexp.MustCompile(`[^a-zA-Z\s]+`)
	multiSpaces = regexp.MustCompile(`\s+`)
)

// ExtractMerchant pulls the counterparty name out of a bank narration and
// returns it in display case. It returns "" when the narration has no
// recognizable payee field.
func ExtractMerchant(description string) string {
	for _, p := range []*regexp.Regexp{upiPayee, posMerchant, transferName} {
		m := p.FindStringSubmatch(description)
		if m == nil {
			continue
		}
		if name := cleanMerchant(m[1]); len(name) >= 3 {
			return displayName(name)
		}
	}
	return ""
}

func cleanMerchant(s string) string {
	s = nonLetters.ReplaceAllString(s, " ")
	return strings.TrimSpace(multiSpaces.ReplaceAllString(s, " "))
}

// displayName title-cases a merchant. A Caser is stateful, so one is built per call.
func displayName(s string) string {
	return cases.Title(language.English).String(strings.ToLower(s))
}

// matchText is what rules are evaluated against: the narration plus the
// extracted merchant, lower-cased.
func matchText(description, merchant string) string {
	text := strings.ToLower(description)
	if merchant != "" {
		text += " " + strings.ToLower(merchant)
	}
	return text
}
