package categorizer

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/dvloznov/statement-categorizer/internal/domain"
)

// Condition is a structured rule predicate. A node is either a leaf
// (Field/Op/Value) or a combinator over children (And/Or).
//
// Fields: description, merchant, amount (absolute), direction ("debit" or
// "credit"). Ops: equals, contains, regex, in, gt, gte, lt, lte.
type Condition struct {
	Field string      `json:"field,omitempty" mapstructure:"field"`
	Op    string      `json:"op,omitempty" mapstructure:"op"`
	Value interface{} `json:"value,omitempty" mapstructure:"value"`
	And   []Condition `json:"and,omitempty" mapstructure:"and"`
	Or    []Condition `json:"or,omitempty" mapstructure:"or"`

	re *regexp.Regexp
}

// Input is the transaction view rules are evaluated against.
type Input struct {
	Description string
	Merchant    string
	Debit       *big.Rat
	Credit      *big.Rat
}

// InputOf builds the rule input for a stored transaction.
func InputOf(t *domain.Transaction) Input {
	return Input{Description: t.Description, Merchant: t.Merchant, Debit: t.Debit, Credit: t.Credit}
}

func (in Input) direction() string {
	switch {
	case in.Debit != nil && in.Debit.Sign() != 0:
		return "debit"
	case in.Credit != nil && in.Credit.Sign() != 0:
		return "credit"
	}
	return ""
}

func (in Input) amount() float64 {
	var r *big.Rat
	if in.Debit != nil {
		r = in.Debit
	} else if in.Credit != nil {
		r = in.Credit
	}
	if r == nil {
		return 0
	}
	f, _ := new(big.Rat).Abs(r).Float64()
	return f
}

// validate checks operators and pre-compiles regex values.
func (c *Condition) validate() error {
	if len(c.And) > 0 || len(c.Or) > 0 {
		for i := range c.And {
			if err := c.And[i].validate(); err != nil {
				return err
			}
		}
		for i := range c.Or {
			if err := c.Or[i].validate(); err != nil {
				return err
			}
		}
		return nil
	}

	switch c.Field {
	case "description", "merchant", "amount", "direction":
	default:
		return fmt.Errorf("condition: unknown field %q", c.Field)
	}
	switch c.Op {
	case "equals", "contains", "in", "gt", "gte", "lt", "lte":
	case "regex":
		s, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("condition: regex value must be a string")
		}
		re, err := regexp.Compile("(?i)" + s)
		if err != nil {
			return fmt.Errorf("condition: %w", err)
		}
		c.re = re
	default:
		return fmt.Errorf("condition: unknown op %q", c.Op)
	}
	return nil
}

// Eval reports whether in satisfies the condition.
func (c *Condition) Eval(in Input) bool {
	if len(c.And) > 0 {
		for i := range c.And {
			if !c.And[i].Eval(in) {
				return false
			}
		}
		return true
	}
	if len(c.Or) > 0 {
		for i := range c.Or {
			if c.Or[i].Eval(in) {
				return true
			}
		}
		return false
	}

	var field interface{}
	switch c.Field {
	case "description":
		field = in.Description
	case "merchant":
		field = in.Merchant
	case "direction":
		field = in.direction()
	case "amount":
		field = in.amount()
	default:
		return false
	}

	switch c.Op {
	case "equals":
		switch v := field.(type) {
		case string:
			s, ok := c.Value.(string)
			return ok && strings.EqualFold(v, s)
		case float64:
			f, ok := toFloat(c.Value)
			return ok && v == f
		}
	case "contains":
		s, ok := field.(string)
		val, ok2 := c.Value.(string)
		return ok && ok2 && strings.Contains(strings.ToLower(s), strings.ToLower(val))
	case "regex":
		s, ok := field.(string)
		if !ok {
			return false
		}
		re := c.re
		if re == nil {
			val, ok := c.Value.(string)
			if !ok {
				return false
			}
			var err error
			if re, err = regexp.Compile("(?i)" + val); err != nil {
				return false
			}
		}
		return re.MatchString(s)
	case "in":
		s, ok := field.(string)
		list, ok2 := c.Value.([]interface{})
		if !ok || !ok2 {
			return false
		}
		for _, item := range list {
			if v, ok := item.(string); ok && strings.EqualFold(s, v) {
				return true
			}
		}
	case "gt", "gte", "lt", "lte":
		f, ok := field.(float64)
		val, ok2 := toFloat(c.Value)
		if !ok || !ok2 {
			return false
		}
		switch c.Op {
		case "gt":
			return f > val
		case "gte":
			return f >= val
		case "lt":
			return f < val
		case "lte":
			return f <= val
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
