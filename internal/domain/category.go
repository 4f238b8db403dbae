package domain

import (
	"fmt"
	"strings"
)

// Category is one label of the fixed category set.
type Category string

// CategorySetVersion identifies the revision of Categories. Bump it whenever the
// set changes so stored predictions can be traced to the set they were made with.
const CategorySetVersion = "2024.1"

const (
	CategoryFood             Category = "Food"
	CategoryShopping         Category = "Shopping"
	CategoryTravel           Category = "Travel"
	CategoryBills            Category = "Bills"
	CategoryEntertainment    Category = "Entertainment"
	CategorySubscriptions    Category = "Subscriptions"
	CategoryHealth           Category = "Health"
	CategoryGroceries        Category = "Groceries"
	CategoryEducation        Category = "Education"
	CategoryFuel             Category = "Fuel"
	CategoryATM              Category = "ATM"
	CategorySalary           Category = "Salary"
	CategoryInterest         Category = "Interest"
	CategoryRefund           Category = "Refund"
	CategoryInternalTransfer Category = "Internal_Transfer"
	CategoryPerson           Category = "Person"
	CategoryOther            Category = "Other"
)

// Categories is the closed category set shared by the rule matcher, the ML
// predictor prompt, the override check and the categories endpoint.
var Categories = []Category{
	CategoryFood,
	CategoryShopping,
	CategoryTravel,
	CategoryBills,
	CategoryEntertainment,
	CategorySubscriptions,
	CategoryHealth,
	CategoryGroceries,
	CategoryEducation,
	CategoryFuel,
	CategoryATM,
	CategorySalary,
	CategoryInterest,
	CategoryRefund,
	CategoryInternalTransfer,
	CategoryPerson,
	CategoryOther,
}

var categoryIndex = func() map[string]Category {
	m := make(map[string]Category, len(Categories))
	for _, c := range Categories {
		m[normalizeCategory(string(c))] = c
	}
	return m
}()

// normalizeCategory upper-cases and trims a name for case-insensitive lookup.
// Spaces and hyphens are folded to underscores so "internal transfer" matches.
func normalizeCategory(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	return n
}

// ParseCategory resolves name to a member of the category set.
// It returns an INVALID_CATEGORY error for anything outside the set.
func ParseCategory(name string) (Category, error) {
	if c, ok := categoryIndex[normalizeCategory(name)]; ok {
		return c, nil
	}
	return "", &Error{
		Code:    CodeInvalidCategory,
		Message: fmt.Sprintf("category %q is not one of the %d supported categories", name, len(Categories)),
	}
}

// IsValid reports whether c is an exact member of the category set.
func (c Category) IsValid() bool {
	got, ok := categoryIndex[normalizeCategory(string(c))]
	return ok && got == c
}

// CategoryNames returns the category set as plain strings.
func CategoryNames() []string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return names
}
