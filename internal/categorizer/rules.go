package categorizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/statement-categorizer/internal/domain"
)

// DefaultRuleConfidence is the confidence given to a rule that does not set one.
const DefaultRuleConfidence = 0.95

// Rule maps a narration pattern, and optionally a structured condition, to a
// category. Patterns are case-insensitive substrings unless Regex is set.
type Rule struct {
	Name       string          `json:"name" mapstructure:"name"`
	Pattern    string          `json:"pattern" mapstructure:"pattern"`
	Regex      bool            `json:"regex" mapstructure:"regex"`
	Category   domain.Category `json:"category" mapstructure:"category"`
	Confidence float64         `json:"confidence" mapstructure:"confidence"`
	Condition  *Condition      `json:"condition,omitempty" mapstructure:"condition"`
}

type compiledRule struct {
	Rule
	substr string
	re     *regexp.Regexp
}

// RuleSet is an ordered rule list. The first matching rule wins.
type RuleSet struct {
	rules []compiledRule
}

// RuleMatch is the outcome of a successful rule evaluation.
type RuleMatch struct {
	Rule       string
	Category   domain.Category
	Confidence float64
}

// NewRuleSet validates and compiles rules, keeping their order. Rules without a
// confidence get defaultConfidence.
func NewRuleSet(rules []Rule, defaultConfidence float64) (*RuleSet, error) {
	if defaultConfidence <= 0 || defaultConfidence > 1 {
		defaultConfidence = DefaultRuleConfidence
	}

	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
			r.Name = name
		}

		category, err := domain.ParseCategory(string(r.Category))
		if err != nil {
			return nil, fmt.Errorf("NewRuleSet: rule %q: %w", name, err)
		}
		r.Category = category

		if r.Confidence == 0 {
			r.Confidence = defaultConfidence
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return nil, fmt.Errorf("NewRuleSet: rule %q: confidence %v outside [0,1]", name, r.Confidence)
		}

		if strings.TrimSpace(r.Pattern) == "" && r.Condition == nil {
			return nil, fmt.Errorf("NewRuleSet: rule %q has neither pattern nor condition", name)
		}

		cr := compiledRule{Rule: r}
		switch {
		case r.Pattern == "":
		case r.Regex:
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("NewRuleSet: rule %q: %w", name, err)
			}
			cr.re = re
		default:
			cr.substr = strings.ToLower(r.Pattern)
		}

		if r.Condition != nil {
			cond := *r.Condition
			if err := cond.validate(); err != nil {
				return nil, fmt.Errorf("NewRuleSet: rule %q: %w", name, err)
			}
			cr.Condition = &cond
		}

		rs.rules = append(rs.rules, cr)
	}
	return rs, nil
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns the compiled rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.Rule
	}
	return out
}

// Match returns the first rule that matches in.
func (rs *RuleSet) Match(in Input) (RuleMatch, bool) {
	text := matchText(in.Description, in.Merchant)
	for _, r := range rs.rules {
		if r.matches(text, in) {
			return RuleMatch{Rule: r.Name, Category: r.Category, Confidence: r.Confidence}, true
		}
	}
	return RuleMatch{}, false
}

func (r *compiledRule) matches(text string, in Input) bool {
	switch {
	case r.re != nil:
		if !r.re.MatchString(text) {
			return false
		}
	case r.substr != "":
		if !strings.Contains(text, r.substr) {
			return false
		}
	}
	if r.Condition != nil && !r.Condition.Eval(in) {
		return false
	}
	return true
}

// keywords builds a regex rule matching any of words as a substring.
func keywords(name string, category domain.Category, words ...string) Rule {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return Rule{Name: name, Pattern: strings.Join(quoted, "|"), Regex: true, Category: category}
}

// DefaultRules is the built-in rule book. Order matters: cash, interest,
// salary and reversals are recognized before merchant keywords so that an
// "AMAZON REFUND" lands in Refund rather than Shopping. Person rules come last.
func DefaultRules() []Rule {
	return []Rule{
		keywords("atm-withdrawal", domain.CategoryATM, "nwd", "atw-", "atw/", "atm wdl", "atm cash", "cash wdl", "cashwdrl", "cash withdrawal"),
		keywords("interest-credit", domain.CategoryInterest, "interest paid", "interestpaid", "credit interest", "int.pd", "int pd", "sb interest"),
		{Name: "pension-bulk-posting", Pattern: `bulk\s+posting.*ppo`, Regex: true, Category: domain.CategorySalary, Confidence: 0.90},
		keywords("salary", domain.CategorySalary, "salary", "payroll", "sal credit"),
		{Name: "refund", Pattern: `refund|rev-upi|\breversal\b`, Regex: true, Category: domain.CategoryRefund, Confidence: 0.90},
		{Name: "self-transfer", Pattern: `by\s+transfer.*(neft|imps|inb)|csh dep \(cdm\)|self transfer|own account`, Regex: true, Category: domain.CategoryInternalTransfer, Confidence: 0.85},
		{Name: "toll", Pattern: `fastag|fasttag|\btoll\b`, Regex: true, Category: domain.CategoryTravel, Confidence: 0.90},
		{Name: "travel", Pattern: `irctc|redbus|\buber\b|\bola\b|indigo|indian\s*railways|metro\s*rail|makemytrip`, Regex: true, Category: domain.CategoryTravel},
		keywords("food-delivery", domain.CategoryFood, "zomato", "swiggy", "dominos", "mcdonald", "starbucks"),
		keywords("groceries", domain.CategoryGroceries, "bigbasket", "zepto", "blinkit", "dmart", "easybazar", "more retail"),
		{Name: "supermarket", Pattern: `super\s*market|supermart|\bmart\b`, Regex: true, Category: domain.CategoryGroceries, Confidence: 0.80},
		keywords("shopping", domain.CategoryShopping, "amazon", "flipkart", "myntra", "ajio", "decathlon", "zudio", "westside", "reliance digital"),
		{Name: "bills", Pattern: `airtel|\bjio\b|bsnl|tataplay|tata play|electricity|tangedco|\beb bill\b|broadband|bescom`, Regex: true, Category: domain.CategoryBills},
		keywords("entertainment", domain.CategoryEntertainment, "netflix", "bookmyshow", "pvr", "inox", "spotify"),
		keywords("subscriptions", domain.CategorySubscriptions, "openai", "chatgpt", "youtube", "appleservices", "apple.com", "google play"),
		keywords("health", domain.CategoryHealth, "apollo", "pharmacy", "medical", "hospital", "clinic", "pharmeasy"),
		keywords("education", domain.CategoryEducation, "university", "college", "school fee", "udemy", "coursera"),
		{Name: "fuel", Pattern: `petrol|\bfuel|hpcl|bpcl|indian\s*oil|iocl`, Regex: true, Category: domain.CategoryFuel},
		{Name: "restaurant", Pattern: `\bhotel\b|restaurant|\bcafe\b`, Regex: true, Category: domain.CategoryFood, Confidence: 0.80},
		// Honorific payees are people unless a merchant rule above claimed the row.
		{Name: "person-honorific", Pattern: `\b(mr|mrs|ms)(\.\s*|\s+)[a-z]+`, Regex: true, Category: domain.CategoryPerson, Confidence: 0.85},
	}
}
