// Package decide implements the declarative conditional router attached
// to a step: an ordered list of conditions evaluated against that step's
// output, each naming a comparator and a target step to route to when it
// matches.
package decide

import "github.com/loomwrk/loom/internal/value"

// Operator names a comparison the Decider can apply to a step output key.
type Operator string

const (
	Eq       Operator = "=="
	NotEq    Operator = "!="
	StrictEq Operator = "==="
	StrictNe Operator = "!=="
	Lt       Operator = "<"
	Lte      Operator = "<="
	Gt       Operator = ">"
	Gte      Operator = ">="
	In       Operator = "in"
	Contains Operator = "contains"
)

// Condition is one (key, operator, expected, target) rule.
type Condition struct {
	Key      string
	Operator Operator
	Expected any
	Target   string
}

// Decider evaluates an ordered list of Conditions against a step's output
// map; the first match wins. If none match, Default is used (empty
// string means "keep static edges").
type Decider struct {
	Conditions []Condition
	Default    string
}

// New constructs a Decider from the given conditions and a default
// target.
func New(conditions []Condition, def string) *Decider {
	return &Decider{Conditions: conditions, Default: def}
}

// Evaluate returns the first condition's Target whose comparison against
// output succeeds, or Default when none match. A missing output key
// evaluates as nil for comparison purposes. An unknown operator never
// matches (evaluates to false) rather than erroring.
func (d *Decider) Evaluate(output value.Map) string {
	for _, c := range d.Conditions {
		actual := output[c.Key]
		if compare(c.Operator, actual, c.Expected) {
			return c.Target
		}
	}
	return d.Default
}

func compare(op Operator, actual, expected any) bool {
	switch op {
	case Eq:
		return value.Equal(actual, expected)
	case NotEq:
		return !value.Equal(actual, expected)
	case StrictEq:
		return value.StrictEqual(actual, expected)
	case StrictNe:
		return !value.StrictEqual(actual, expected)
	case Lt:
		r, ok := value.Less(actual, expected)
		return ok && r
	case Lte:
		less, ok := value.Less(actual, expected)
		if !ok {
			return false
		}
		return less || value.Equal(actual, expected)
	case Gt:
		r, ok := value.Less(expected, actual)
		return ok && r
	case Gte:
		less, ok := value.Less(expected, actual)
		if !ok {
			return false
		}
		return less || value.Equal(actual, expected)
	case In:
		return value.In(actual, expected)
	case Contains:
		return value.Contains(actual, expected)
	default:
		return false
	}
}
