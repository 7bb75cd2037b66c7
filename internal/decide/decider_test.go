package decide

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loomwrk/loom/internal/value"
)

func TestEvaluateFirstMatchWins(t *testing.T) {
	d := New([]Condition{
		{Key: "score", Operator: Gte, Expected: 0.8, Target: "high"},
		{Key: "score", Operator: Gte, Expected: 0.5, Target: "medium"},
	}, "low")

	assert.Equal(t, "high", d.Evaluate(value.Map{"score": 0.9}))
	assert.Equal(t, "medium", d.Evaluate(value.Map{"score": 0.6}))
	assert.Equal(t, "low", d.Evaluate(value.Map{"score": 0.1}))
}

func TestEvaluateMissingKeyIsNil(t *testing.T) {
	d := New([]Condition{
		{Key: "missing", Operator: Eq, Expected: nil, Target: "matched"},
	}, "default")
	assert.Equal(t, "matched", d.Evaluate(value.Map{}))
}

func TestEvaluateUnknownOperatorNeverMatches(t *testing.T) {
	d := New([]Condition{
		{Key: "x", Operator: "bogus", Expected: 1, Target: "never"},
	}, "fallback")
	assert.Equal(t, "fallback", d.Evaluate(value.Map{"x": 1}))
}

func TestEqualityOperators(t *testing.T) {
	assert.True(t, compare(Eq, "5", 5))
	assert.False(t, compare(StrictEq, "5", 5))
	assert.True(t, compare(StrictEq, 5.0, 5.0))
	assert.True(t, compare(NotEq, "a", "b"))
	assert.True(t, compare(StrictNe, "5", 5))
}

func TestOrderingOperators(t *testing.T) {
	assert.True(t, compare(Lt, 1, 2))
	assert.True(t, compare(Lte, 2, 2))
	assert.True(t, compare(Gt, 3, 2))
	assert.True(t, compare(Gte, 2, 2))
	assert.True(t, compare(Lt, "apple", "banana"))
	assert.False(t, compare(Gt, "apple", "banana"))
}

func TestInOperator(t *testing.T) {
	assert.True(t, compare(In, "b", []any{"a", "b", "c"}))
	assert.False(t, compare(In, "z", []any{"a", "b", "c"}))
	assert.False(t, compare(In, "a", "not-a-list"))
}

func TestContainsOperator(t *testing.T) {
	assert.True(t, compare(Contains, "hello world", "world"))
	assert.False(t, compare(Contains, "hello world", "bye"))
	assert.False(t, compare(Contains, 5, "5"))
}

func TestDefaultTargetEmptyMeansKeepStaticEdges(t *testing.T) {
	d := New(nil, "")
	assert.Equal(t, "", d.Evaluate(value.Map{"anything": true}))
}
