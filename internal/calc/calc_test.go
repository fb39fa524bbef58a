package calc

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeInventory struct {
	item *types.InventoryItem
	txs  []types.InventoryTransaction
	err  error
}

func (f *fakeInventory) GetItem(ctx context.Context, tenantID, productID, locationID string) (*types.InventoryItem, error) {
	return f.item, f.err
}

func (f *fakeInventory) QueryTransactions(ctx context.Context, tenantID, itemID string, from, to time.Time, txType types.TransactionType) ([]types.InventoryTransaction, error) {
	return f.txs, f.err
}

type fakeForecast struct {
	result *ports.ForecastResult
	err    error
}

func (f *fakeForecast) GenerateDemandForecast(ctx context.Context, tenantID string, req ports.ForecastRequest) (*ports.ForecastResult, error) {
	return f.result, f.err
}

func TestZScore(t *testing.T) {
	assert.Equal(t, 0.0, ZScore(0.50))
	assert.Equal(t, 1.28, ZScore(0.90))
	assert.Equal(t, 1.65, ZScore(0.95))
	assert.Equal(t, 3.09, ZScore(0.999))
	// snaps to nearest listed level
	assert.Equal(t, 1.65, ZScore(0.94))
}

func TestSafetyStock(t *testing.T) {
	assert.Equal(t, int64(0), SafetyStock(4.0, 0, 0.95))
	assert.Equal(t, int64(0), SafetyStock(0, 7, 0.95))

	// z=1.65, sqrt(7*4)=5.2915 -> round(8.73) = 9
	assert.Equal(t, int64(9), SafetyStock(4.0, 7, 0.95))
}

func TestComputeEOQ(t *testing.T) {
	// 2*7300*50000/5 = 146,000,000; sqrt = 12083.04 -> 12083
	res, err := ComputeEOQ(7300,
		decimal.NewFromInt(50000), decimal.NewFromInt(50), decimal.NewFromInt(10), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(12083), res.EOQ)
	assert.InDelta(t, 7300.0/12083.0, res.OrdersPerYear, 0.001)
	assert.True(t, res.CostSavingsVsCurrent.IsZero())

	// current quantity far from optimal produces positive savings
	res, err = ComputeEOQ(7300,
		decimal.NewFromInt(50000), decimal.NewFromInt(50), decimal.NewFromInt(10), 100)
	require.NoError(t, err)
	assert.True(t, res.CostSavingsVsCurrent.IsPositive())
}

func TestComputeEOQRejectsInvalidInputs(t *testing.T) {
	_, err := ComputeEOQ(0, decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(1), 0)
	assert.Error(t, err)
	_, err = ComputeEOQ(100, decimal.Zero, decimal.NewFromInt(1), decimal.NewFromInt(1), 0)
	assert.Error(t, err)
}

func TestAnalyzeDemandSteady(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	var txs []types.InventoryTransaction
	for i := 1; i <= 30; i++ {
		txs = append(txs, types.InventoryTransaction{
			Date:     now.AddDate(0, 0, -i),
			Type:     types.TransactionIssue,
			Quantity: 10,
		})
	}

	d := AnalyzeDemand(txs, 30, now)
	assert.InDelta(t, 10.0, d.AverageDailyDemand, 0.5)
	assert.Equal(t, TrendStable, d.Trend)
	assert.GreaterOrEqual(t, d.DataPoints, 28)
}

func TestAnalyzeDemandTrendIncreasing(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	var txs []types.InventoryTransaction
	for i := 1; i <= 30; i++ {
		qty := int64(5)
		if i <= 15 { // most recent half
			qty = 20
		}
		txs = append(txs, types.InventoryTransaction{
			Date:     now.AddDate(0, 0, -i),
			Type:     types.TransactionIssue,
			Quantity: qty,
		})
	}

	d := AnalyzeDemand(txs, 30, now)
	assert.Equal(t, TrendIncreasing, d.Trend)
	assert.Greater(t, d.TrendChangePct, 10.0)
}

func TestAnalyzeDemandEmptyHistory(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	d := AnalyzeDemand(nil, 30, now)
	assert.Zero(t, d.AverageDailyDemand)
	assert.Equal(t, TrendStable, d.Trend)
	assert.Equal(t, 0.1, d.Confidence)
	assert.Equal(t, 0.4, d.DataQuality)
}

func TestUrgencyScoreLadder(t *testing.T) {
	tests := []struct {
		name         string
		stock, rp    int64
		daysOfSupply float64
		leadTime     int
		want         int
	}{
		{"depleted", 0, 100, 0, 7, 10},
		{"quarter of reorder point", 25, 100, 50, 0, 9},
		{"half of reorder point", 50, 100, 50, 0, 7},
		{"seventy percent", 70, 100, 50, 0, 5},
		{"inside lead time coverage", 200, 100, 5, 7, 8},
		{"inside twice lead time", 200, 100, 12, 7, 3},
		{"comfortable", 500, 100, 100, 7, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, urgencyScore(tt.stock, tt.rp, tt.daysOfSupply, tt.leadTime))
		})
	}
}

func baseRule() *types.ReorderRule {
	return &types.ReorderRule{
		ID:              "rule-1",
		TenantID:        "tenant-1",
		ProductID:       "prod-1",
		LocationID:      "loc-1",
		RuleType:        types.RuleTypeFixedQuantity,
		Trigger:         types.TriggerStockLevel,
		Status:          types.RuleStatusActive,
		IsActive:        true,
		ReorderPoint:    50,
		ReorderQuantity: 100,
		LeadTimeDays:    7,
		ServiceLevel:    0.95,
		UnitCost:        decimal.NewFromInt(10000),
	}
}

func TestCalculateFixedQuantity(t *testing.T) {
	now := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)
	inv := &fakeInventory{txs: steadyIssues(now, 30, 10)}
	c := NewCalculator(inv, nil, fixedClock{now})

	rule := baseRule()
	item := &types.InventoryItem{ID: "item-1", QuantityOnHand: 40}
	product := &types.Product{ID: "prod-1", UnitCost: decimal.NewFromInt(10000)}

	res := c.Calculate(context.Background(), rule, item, product)
	require.True(t, res.Valid)
	assert.Equal(t, int64(100), res.RecommendedOrderQuantity)
	assert.True(t, res.ShouldReorderNow, "stock 40 under lead time demand should reorder")
	assert.Equal(t, decimal.NewFromInt(1000000).String(), res.EstimatedValue.String())
	assert.Greater(t, res.UrgencyScore, 1)
}

func TestCalculateMissingInputsInvalid(t *testing.T) {
	now := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)
	c := NewCalculator(&fakeInventory{}, nil, fixedClock{now})

	res := c.Calculate(context.Background(), nil, nil, nil)
	assert.False(t, res.Valid)
	assert.False(t, res.ShouldReorderNow)
	assert.NotEmpty(t, res.ValidationErrors)
}

func TestCalculateOrderQuantityConstraints(t *testing.T) {
	now := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)
	inv := &fakeInventory{txs: steadyIssues(now, 30, 10)}
	c := NewCalculator(inv, nil, fixedClock{now})

	rule := baseRule()
	rule.ReorderQuantity = 500
	rule.MaxOrderQuantity = 200
	item := &types.InventoryItem{ID: "item-1", QuantityOnHand: 10}
	product := &types.Product{ID: "prod-1", UnitCost: decimal.NewFromInt(10000)}

	res := c.Calculate(context.Background(), rule, item, product)
	require.True(t, res.Valid)
	assert.Equal(t, int64(200), res.RecommendedOrderQuantity)

	// max order value caps harder than max quantity
	rule.MaxOrderValue = decimal.NewFromInt(500000) // 50 units at 10000
	res = c.Calculate(context.Background(), rule, item, product)
	assert.Equal(t, int64(50), res.RecommendedOrderQuantity)
}

func TestCalculateForecastFallback(t *testing.T) {
	now := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)
	inv := &fakeInventory{txs: steadyIssues(now, 30, 10)}
	fc := &fakeForecast{result: &ports.ForecastResult{Success: false}}
	c := NewCalculator(inv, fc, fixedClock{now})

	rule := baseRule()
	rule.UseForecasting = true
	item := &types.InventoryItem{ID: "item-1", QuantityOnHand: 40}
	product := &types.Product{ID: "prod-1", UnitCost: decimal.NewFromInt(10000)}

	res := c.Calculate(context.Background(), rule, item, product)
	require.True(t, res.Valid)
	assert.Nil(t, res.ForecastDemand)
	assert.Contains(t, res.Warnings, "forecast unavailable; falling back to stock-level logic")
}

func TestCalculateSeasonalFactorScalesReorderPoint(t *testing.T) {
	now := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)
	inv := &fakeInventory{txs: steadyIssues(now, 30, 10)}
	c := NewCalculator(inv, nil, fixedClock{now})

	rule := baseRule()
	item := &types.InventoryItem{ID: "item-1", QuantityOnHand: 40}
	product := &types.Product{ID: "prod-1", UnitCost: decimal.NewFromInt(10000)}

	plain := c.Calculate(context.Background(), rule, item, product)

	rule.SeasonalFactors = map[int]float64{6: 2.0}
	seasonal := c.Calculate(context.Background(), rule, item, product)

	assert.Equal(t, 2.0, seasonal.SeasonalFactor)
	assert.Greater(t, seasonal.RecommendedReorderPoint, plain.RecommendedReorderPoint)
}

func steadyIssues(now time.Time, days int, qty int64) []types.InventoryTransaction {
	var txs []types.InventoryTransaction
	for i := 1; i <= days; i++ {
		txs = append(txs, types.InventoryTransaction{
			Date:     now.AddDate(0, 0, -i),
			Type:     types.TransactionIssue,
			Quantity: qty,
		})
	}
	return txs
}
