package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stokcerdas/replenish/pkg/types"
)

func samplePayload() map[string]any {
	return map[string]any{
		"productId": "prod-1",
		"quantity":  float64(42),
		"category":  "beverages",
		"inventory": map[string]any{
			"level": float64(10),
		},
	}
}

func TestFieldValueDotPath(t *testing.T) {
	v, ok := FieldValue(samplePayload(), "inventory.level")
	assert.True(t, ok)
	assert.Equal(t, float64(10), v)

	_, ok = FieldValue(samplePayload(), "inventory.missing")
	assert.False(t, ok)

	_, ok = FieldValue(samplePayload(), "productId.nested")
	assert.False(t, ok, "cannot descend into a scalar")
}

func TestEvaluateCondition(t *testing.T) {
	payload := samplePayload()

	cases := []struct {
		name string
		cond types.FieldCondition
		want bool
	}{
		{"equals string", types.FieldCondition{Field: "productId", Operator: types.OpEquals, Value: "prod-1"}, true},
		{"equals cross-numeric", types.FieldCondition{Field: "quantity", Operator: types.OpEquals, Value: 42}, true},
		{"not_equals", types.FieldCondition{Field: "productId", Operator: types.OpNotEquals, Value: "prod-2"}, true},
		{"greater_than", types.FieldCondition{Field: "quantity", Operator: types.OpGreaterThan, Value: 40}, true},
		{"greater_than false", types.FieldCondition{Field: "quantity", Operator: types.OpGreaterThan, Value: 42}, false},
		{"less_than nested", types.FieldCondition{Field: "inventory.level", Operator: types.OpLessThan, Value: 20}, true},
		{"contains", types.FieldCondition{Field: "category", Operator: types.OpContains, Value: "bever"}, true},
		{"in", types.FieldCondition{Field: "category", Operator: types.OpIn, Value: []any{"snacks", "beverages"}}, true},
		{"in miss", types.FieldCondition{Field: "category", Operator: types.OpIn, Value: []any{"snacks"}}, false},
		{"between inclusive", types.FieldCondition{Field: "quantity", Operator: types.OpBetween, Value: 42, SecondValue: 50}, true},
		{"between outside", types.FieldCondition{Field: "quantity", Operator: types.OpBetween, Value: 43, SecondValue: 50}, false},
		{"missing field equals", types.FieldCondition{Field: "nope", Operator: types.OpEquals, Value: "x"}, false},
		{"missing field not_equals", types.FieldCondition{Field: "nope", Operator: types.OpNotEquals, Value: "x"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EvaluateCondition(payload, tc.cond))
		})
	}
}

func TestEvaluateConditionSet(t *testing.T) {
	payload := samplePayload()
	hit := types.FieldCondition{Field: "productId", Operator: types.OpEquals, Value: "prod-1"}
	miss := types.FieldCondition{Field: "productId", Operator: types.OpEquals, Value: "prod-2"}

	assert.True(t, EvaluateConditionSet(payload, nil, types.LogicalAnd), "empty set is vacuously true")
	assert.True(t, EvaluateConditionSet(payload, []types.FieldCondition{hit, hit}, types.LogicalAnd))
	assert.False(t, EvaluateConditionSet(payload, []types.FieldCondition{hit, miss}, types.LogicalAnd))
	assert.True(t, EvaluateConditionSet(payload, []types.FieldCondition{hit, miss}, types.LogicalOr))
	assert.False(t, EvaluateConditionSet(payload, []types.FieldCondition{miss}, types.LogicalOr))
}
