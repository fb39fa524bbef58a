package calc

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/stokcerdas/replenish/pkg/types"
)

// EOQResult is the economic order quantity breakdown.
type EOQResult struct {
	EOQ                  int64           `json:"eoq"`
	AnnualOrderingCost   decimal.Decimal `json:"annualOrderingCost"`
	AnnualHoldingCost    decimal.Decimal `json:"annualHoldingCost"`
	TotalAnnualCost      decimal.Decimal `json:"totalAnnualCost"`
	OrdersPerYear        float64         `json:"ordersPerYear"`
	CostSavingsVsCurrent decimal.Decimal `json:"costSavingsVsCurrent"`
}

// ComputeEOQ derives the order quantity minimizing combined ordering and
// holding cost. holdingCostRate is a percentage of unit cost per year;
// currentOrderQty feeds the savings comparison and may be zero.
func ComputeEOQ(annualDemand int64, orderingCost, unitCost, holdingCostRate decimal.Decimal, currentOrderQty int64) (*EOQResult, error) {
	if annualDemand <= 0 {
		return nil, types.NewValidationError("EOQ requires positive annual demand")
	}
	if !orderingCost.IsPositive() || !unitCost.IsPositive() || !holdingCostRate.IsPositive() {
		return nil, types.NewValidationError("EOQ requires positive ordering cost, unit cost and holding cost rate")
	}

	h, _ := unitCost.Mul(holdingCostRate).Div(decimal.NewFromInt(100)).Float64()
	d := float64(annualDemand)
	s, _ := orderingCost.Float64()

	eoq := math.Round(math.Sqrt(2 * d * s / h))
	if eoq < 1 {
		eoq = 1
	}
	q := int64(eoq)

	ordering, holding := annualCosts(d, s, h, float64(q))
	result := &EOQResult{
		EOQ:                q,
		AnnualOrderingCost: decimal.NewFromFloat(ordering).Round(2),
		AnnualHoldingCost:  decimal.NewFromFloat(holding).Round(2),
		TotalAnnualCost:    decimal.NewFromFloat(ordering + holding).Round(2),
		OrdersPerYear:      d / float64(q),
	}

	if currentOrderQty > 0 {
		curOrdering, curHolding := annualCosts(d, s, h, float64(currentOrderQty))
		savings := (curOrdering + curHolding) - (ordering + holding)
		if savings > 0 {
			result.CostSavingsVsCurrent = decimal.NewFromFloat(savings).Round(2)
		} else {
			result.CostSavingsVsCurrent = decimal.Zero
		}
	} else {
		result.CostSavingsVsCurrent = decimal.Zero
	}

	return result, nil
}

// annualCosts returns (ordering, holding) cost for an order quantity q.
func annualCosts(d, s, h, q float64) (float64, float64) {
	return d / q * s, q / 2 * h
}
