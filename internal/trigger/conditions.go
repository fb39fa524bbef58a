// Package trigger evaluates rule and workflow triggers: stock thresholds,
// days of supply, cron schedules, demand forecasts, bus events, webhooks and
// polled condition sets.
package trigger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stokcerdas/replenish/pkg/types"
)

// FieldValue resolves a dot path into a nested payload. Missing segments
// return (nil, false).
func FieldValue(payload map[string]any, path string) (any, bool) {
	cur := any(payload)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// EvaluateCondition applies one field condition to a payload. A missing field
// only satisfies not_equals.
func EvaluateCondition(payload map[string]any, cond types.FieldCondition) bool {
	val, ok := FieldValue(payload, cond.Field)
	if !ok {
		return cond.Operator == types.OpNotEquals
	}

	switch cond.Operator {
	case types.OpEquals:
		return looseEqual(val, cond.Value)
	case types.OpNotEquals:
		return !looseEqual(val, cond.Value)
	case types.OpGreaterThan:
		a, aok := toFloat(val)
		b, bok := toFloat(cond.Value)
		return aok && bok && a > b
	case types.OpLessThan:
		a, aok := toFloat(val)
		b, bok := toFloat(cond.Value)
		return aok && bok && a < b
	case types.OpContains:
		return strings.Contains(toString(val), toString(cond.Value))
	case types.OpIn:
		list, ok := cond.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if looseEqual(val, item) {
				return true
			}
		}
		return false
	case types.OpBetween:
		a, aok := toFloat(val)
		lo, lok := toFloat(cond.Value)
		hi, hok := toFloat(cond.SecondValue)
		return aok && lok && hok && a >= lo && a <= hi
	}
	return false
}

// EvaluateConditionSet combines conditions with AND or OR. An empty set is
// vacuously true.
func EvaluateConditionSet(payload map[string]any, conds []types.FieldCondition, op types.LogicalOp) bool {
	if len(conds) == 0 {
		return true
	}
	if op == types.LogicalOr {
		for _, c := range conds {
			if EvaluateCondition(payload, c) {
				return true
			}
		}
		return false
	}
	for _, c := range conds {
		if !EvaluateCondition(payload, c) {
			return false
		}
	}
	return true
}

// looseEqual compares across the numeric types JSON decoding produces.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}
