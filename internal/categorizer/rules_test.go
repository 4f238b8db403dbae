package categorizer

import (
	"testing"

	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRuleSet_Validation(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{"unknown category", []Rule{{Pattern: "x", Category: "Crypto"}}},
		{"no pattern or condition", []Rule{{Category: domain.CategoryFood}}},
		{"bad regex", []Rule{{Pattern: "(", Regex: true, Category: domain.CategoryFood}}},
		{"confidence above one", []Rule{{Pattern: "x", Category: domain.CategoryFood, Confidence: 1.5}}},
		{"bad condition op", []Rule{{Category: domain.CategoryFood, Condition: &Condition{Field: "amount", Op: "between"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleSet(tt.rules, DefaultRuleConfidence)
			assert.Error(t, err)
		})
	}
}

func TestNewRuleSet_Defaults(t *testing.T) {
	rs, err := NewRuleSet([]Rule{
		{Pattern: "swiggy", Category: "food"},
		{Pattern: "uber", Category: domain.CategoryTravel, Confidence: 0.5},
	}, 0)
	require.NoError(t, err)

	rules := rs.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "rule-1", rules[0].Name)
	assert.Equal(t, domain.CategoryFood, rules[0].Category)
	assert.Equal(t, DefaultRuleConfidence, rules[0].Confidence)
	assert.Equal(t, 0.5, rules[1].Confidence)
}

func TestRuleSet_Match(t *testing.T) {
	rs, err := NewRuleSet([]Rule{
		{Name: "refund", Pattern: `refund|reversal`, Regex: true, Category: domain.CategoryRefund},
		{Name: "amazon", Pattern: "Amazon", Category: domain.CategoryShopping},
		{
			Name:     "big-transfer",
			Pattern:  "neft",
			Category: domain.CategoryInternalTransfer,
			Condition: &Condition{And: []Condition{
				{Field: "direction", Op: "equals", Value: "credit"},
				{Field: "amount", Op: "gte", Value: 50000},
			}},
		},
	}, DefaultRuleConfidence)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   Input
		want domain.Category
		ok   bool
	}{
		{"case-insensitive substring", Input{Description: "AMAZON PAY INDIA"}, domain.CategoryShopping, true},
		{"earlier rule wins", Input{Description: "AMAZON REFUND 123"}, domain.CategoryRefund, true},
		{"merchant is matched too", Input{Description: "UPI/1/2/X", Merchant: "Amazon"}, domain.CategoryShopping, true},
		{"condition satisfied", Input{Description: "NEFT CR", Credit: domain.MustAmount("75000")}, domain.CategoryInternalTransfer, true},
		{"condition fails on direction", Input{Description: "NEFT DR", Debit: domain.MustAmount("75000")}, "", false},
		{"condition fails on amount", Input{Description: "NEFT CR", Credit: domain.MustAmount("100")}, "", false},
		{"no match", Input{Description: "MISC"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := rs.Match(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, m.Category)
			if ok {
				assert.Equal(t, DefaultRuleConfidence, m.Confidence)
			}
		})
	}
}

func TestDefaultRules(t *testing.T) {
	rs, err := NewRuleSet(DefaultRules(), DefaultRuleConfidence)
	require.NoError(t, err)

	tests := []struct {
		description string
		want        domain.Category
	}{
		{"NWD-512967XXXXXX1234-S1ANCH01-CHENNAI", domain.CategoryATM},
		{"CREDIT INTEREST CAPITALISED", domain.CategoryInterest},
		{"BULK POSTING PPO 12345", domain.CategorySalary},
		{"SALARY FOR MARCH", domain.CategorySalary},
		{"UPI/AMAZON REFUND/123", domain.CategoryRefund},
		{"FASTAG RECHARGE", domain.CategoryTravel},
		{"UPI/123/SWIGGY/PAY", domain.CategoryFood},
		{"POS 4591XXXX DMART AVENUE", domain.CategoryGroceries},
		{"FLIPKART INTERNET", domain.CategoryShopping},
		{"AIRTEL POSTPAID", domain.CategoryBills},
		{"NETFLIX.COM", domain.CategoryEntertainment},
		{"OPENAI CHATGPT SUBSCR", domain.CategorySubscriptions},
		{"APOLLO PHARMACY", domain.CategoryHealth},
		{"UDEMY COURSE", domain.CategoryEducation},
		{"HPCL PETROL PUMP", domain.CategoryFuel},
		{"UPI/412345/MR RAJESH KUMAR/OKSBI", domain.CategoryPerson},
		{"IMPS/P2A/MRS. SUNITA DEVI", domain.CategoryPerson},
		{"NEFT-MS.ANANYA RAO-SALARY ADV", domain.CategorySalary},
		{"UPI/MR SHARMA/SWIGGY/PAY", domain.CategoryFood},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			m, ok := rs.Match(Input{Description: tt.description})
			require.True(t, ok)
			assert.Equal(t, tt.want, m.Category)
		})
	}
}

func TestDefaultRules_PersonNeedsAnHonorific(t *testing.T) {
	rs, err := NewRuleSet(DefaultRules(), DefaultRuleConfidence)
	require.NoError(t, err)

	m, ok := rs.Match(Input{Description: "UPI/99/MR RAVI/YBL"})
	require.True(t, ok)
	assert.Equal(t, "person-honorific", m.Rule)
	assert.Equal(t, 0.85, m.Confidence)

	for _, d := range []string{"SMS CHARGES Q1", "UPI/99/RAVI/YBL", "MRP ADJUSTMENT"} {
		m, ok := rs.Match(Input{Description: d})
		if ok {
			assert.NotEqual(t, domain.CategoryPerson, m.Category, d)
		}
	}
}
