package domain

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"unicode"
)

var (
	amountPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	currencyCode  = regexp.MustCompile(`(?i)^\s*(inr|rs\.?)\s*`)
)

func stripCurrencyCode(s string) string {
	return currencyCode.ReplaceAllString(s, "")
}

// ParseAmount parses a statement amount such as "1,234.50", "₹ 200", "-50.00"
// or "(75.10)". Only currency symbols, whitespace and thousands separators are
// dropped; anything else left over is an error. Blank input yields (nil, nil).
func ParseAmount(s string) (*big.Rat, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return nil, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
			return -1
		}
		return r
	}, stripCurrencyCode(s))
	if !amountPattern.MatchString(cleaned) {
		return nil, fmt.Errorf("ParseAmount: invalid number %q", s)
	}

	r, ok := new(big.Rat).SetString(cleaned)
	if !ok {
		return nil, fmt.Errorf("ParseAmount: invalid number %q", s)
	}
	if negative {
		r.Neg(r)
	}
	return r, nil
}

// MustAmount parses s and panics on failure. Intended for literals in tests and
// rule books.
func MustAmount(s string) *big.Rat {
	r, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return r
}

// FormatAmount renders r with two decimals, or "" for nil.
func FormatAmount(r *big.Rat) string {
	if r == nil {
		return ""
	}
	return r.FloatString(2)
}

// IsZero reports whether r is nil or equal to zero.
func IsZero(r *big.Rat) bool {
	return r == nil || r.Sign() == 0
}

// Net returns credit - debit, treating nil as zero.
func Net(debit, credit *big.Rat) *big.Rat {
	n := new(big.Rat)
	if credit != nil {
		n.Add(n, credit)
	}
	if debit != nil {
		n.Sub(n, debit)
	}
	return n
}

func amountPtr(r *big.Rat) *string {
	if r == nil {
		return nil
	}
	s := r.FloatString(2)
	return &s
}

// DecimalString renders r as an exact decimal for storage. Values with more
// than 12 fractional digits are rounded.
func DecimalString(r *big.Rat) string {
	if r == nil {
		return ""
	}
	for prec := 2; prec < 12; prec++ {
		s := r.FloatString(prec)
		if v, ok := new(big.Rat).SetString(s); ok && v.Cmp(r) == 0 {
			return s
		}
	}
	return r.FloatString(12)
}
