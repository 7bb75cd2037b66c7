// Package value implements the dynamic output type shared by Jobs, the
// Decider, and Context input resolution.
package value

import (
	"fmt"
	"strings"
)

// Map is the output of a Job: string keys to dynamic values, with no
// defined key order. It is the unit of exchange between Jobs, Context.results, and
// Context.resolveInputs.
type Map map[string]any

// Clone returns a deep copy of m so that downstream mutation (a job
// appending to a slice it was handed, for instance) never corrupts the
// Context's copy of record.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = CloneAny(v)
	}
	return out
}

// CloneAny deep-copies a single dynamic value: nil, bool, number, string,
// []any, or map[string]any. Unrecognized types are returned as-is since
// Jobs are expected to stick to JSON-representable outputs.
func CloneAny(v any) any {
	switch t := v.(type) {
	case Map:
		return t.Clone()
	case map[string]any:
		return Map(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneAny(e)
		}
		return out
	default:
		return t
	}
}

// Wrap normalizes a Job's returned output into a Map: non-map outputs
// are wrapped as {"result": <value>}.
func Wrap(output any) Map {
	switch t := output.(type) {
	case nil:
		return Map{}
	case Map:
		return t
	case map[string]any:
		return Map(t)
	default:
		return Map{"result": t}
	}
}

// Equal implements the "==" / "!=" operator family: value equality with
// implicit numeric/string coercion.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// StrictEqual implements "===" / "!==": same dynamic type, same value.
func StrictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b) && fmt.Sprint(a) == fmt.Sprint(b)
	}
}

// Less implements "<"/"<=" etc: numeric comparison when both sides
// coerce to a number, lexical comparison when both sides are strings.
func Less(a, b any) (result bool, ok bool) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af < bf, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs, true
	}
	return false, false
}

// In implements the "in" operator: expected is a list, actual is tested
// for membership.
func In(actual any, expected any) bool {
	list, ok := expected.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if Equal(actual, item) {
			return true
		}
	}
	return false
}

// Contains implements the "contains" operator: actual is a string
// containing the expected substring.
func Contains(actual any, expected any) bool {
	as, aok := actual.(string)
	es, eok := expected.(string)
	if !aok || !eok {
		return false
	}
	return strings.Contains(as, es)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(t, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
