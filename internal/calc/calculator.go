// Package calc implements the reorder calculator: demand analysis, safety
// stock, EOQ, reorder parameters, urgency, financial and risk assessment.
package calc

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

// Result is the validated output of one reorder calculation. Invalid results
// never recommend a reorder.
type Result struct {
	Valid            bool     `json:"valid"`
	ValidationErrors []string `json:"validationErrors,omitempty"`

	RecommendedReorderPoint  int64 `json:"recommendedReorderPoint"`
	RecommendedOrderQuantity int64 `json:"recommendedOrderQuantity"`
	UrgencyScore             int   `json:"urgencyScore"`
	ShouldReorderNow         bool  `json:"shouldReorderNow"`

	Demand         DemandAnalysis `json:"demand"`
	LeadTimeDemand float64        `json:"leadTimeDemand"`
	SafetyStock    int64          `json:"safetyStock"`
	SeasonalFactor float64        `json:"seasonalFactor"`
	EOQ            *EOQResult     `json:"eoq,omitempty"`

	ForecastDemand     *float64 `json:"forecastDemand,omitempty"`
	ForecastConfidence float64  `json:"forecastConfidence,omitempty"`

	CurrentStock      int64           `json:"currentStock"`
	DaysOfSupply      float64         `json:"daysOfSupply"`
	DaysUntilStockout float64         `json:"daysUntilStockout"`
	EstimatedValue    decimal.Decimal `json:"estimatedOrderValue"`
	BudgetImpactPct   float64         `json:"budgetImpactPct"`
	CostPerDayOfStock decimal.Decimal `json:"costPerDayOfStock"`

	StockoutRisk  float64 `json:"stockoutRisk"`
	OverstockRisk float64 `json:"overstockRisk"`

	Confidence  float64  `json:"confidence"`
	DataQuality float64  `json:"dataQuality"`
	Insights    []string `json:"insights,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Calculator computes reorder recommendations from rule, stock and history.
type Calculator struct {
	inventory ports.InventoryPort
	forecast  ports.ForecastPort
	clock     ports.Clock
	logger    *logrus.Entry
}

// NewCalculator wires the calculator's ports. forecast may be nil; forecast
// triggers then always fall back to history.
func NewCalculator(inventory ports.InventoryPort, forecast ports.ForecastPort, clock ports.Clock) *Calculator {
	return &Calculator{
		inventory: inventory,
		forecast:  forecast,
		clock:     clock,
		logger:    logrus.WithField("component", "reorder-calculator"),
	}
}

// Calculate runs the full pipeline. Forecast unavailability degrades to the
// transaction-history path with a warning; it never fails the calculation.
func (c *Calculator) Calculate(ctx context.Context, rule *types.ReorderRule, item *types.InventoryItem, product *types.Product) *Result {
	res := &Result{Valid: true, SeasonalFactor: 1.0}

	if rule == nil {
		return invalid(res, "missing reorder rule")
	}
	if item == nil {
		return invalid(res, "missing inventory item")
	}
	if product == nil {
		return invalid(res, "missing product")
	}
	if err := rule.Validate(); err != nil {
		return invalid(res, err.Error())
	}

	now := c.clock.Now()
	currentStock := item.QuantityAvailable()
	res.CurrentStock = currentStock

	// Demand history. Transaction-derived demand is authoritative; the
	// rule's annualDemand serves only as a fallback when history is empty.
	lookback := rule.DemandLookbackDays
	if lookback <= 0 {
		lookback = 30
	}
	txs, err := c.inventory.QueryTransactions(ctx, rule.TenantID, item.ID,
		now.AddDate(0, 0, -lookback), now, types.TransactionIssue)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("transaction history unavailable: %v", err))
		c.logger.Warnf("transaction query failed for item %s: %v", item.ID, err)
	}
	res.Demand = AnalyzeDemand(txs, lookback, now)

	avgDaily := res.Demand.AverageDailyDemand
	if avgDaily == 0 && rule.AnnualDemand > 0 {
		avgDaily = float64(rule.AnnualDemand) / 365.0
		res.Warnings = append(res.Warnings, "no demand history; using annual demand estimate")
	}

	res.SeasonalFactor = rule.SeasonalFactor(now.Month())

	// Forecast, when the rule asks for one.
	if rule.UseForecasting || rule.RuleType == types.RuleTypeDemandBased {
		c.applyForecast(ctx, rule, res)
	}

	// Safety stock and reorder point.
	res.LeadTimeDemand = avgDaily * float64(rule.LeadTimeDays)
	res.SafetyStock = SafetyStock(res.Demand.Variance, rule.LeadTimeDays, rule.ServiceLevel)
	res.RecommendedReorderPoint = int64(math.Round((res.LeadTimeDemand + float64(res.SafetyStock)) * res.SeasonalFactor))

	// Order quantity.
	unitCost := rule.UnitCost
	if unitCost.IsZero() {
		unitCost = product.UnitCost
	}
	res.RecommendedOrderQuantity = c.orderQuantity(rule, res, currentStock, avgDaily, unitCost)

	// Urgency and reorder decision.
	res.DaysOfSupply = daysOfSupply(currentStock, avgDaily)
	res.DaysUntilStockout = res.DaysOfSupply
	res.UrgencyScore = urgencyScore(currentStock, res.RecommendedReorderPoint, res.DaysOfSupply, rule.LeadTimeDays)
	res.ShouldReorderNow = currentStock <= res.RecommendedReorderPoint && res.RecommendedOrderQuantity > 0

	// Financials.
	res.EstimatedValue = unitCost.Mul(decimal.NewFromInt(res.RecommendedOrderQuantity))
	remaining := rule.RemainingBudget(now)
	if remaining.IsPositive() {
		impact, _ := res.EstimatedValue.Div(remaining).Mul(decimal.NewFromInt(100)).Float64()
		res.BudgetImpactPct = impact
	}
	res.CostPerDayOfStock = unitCost.Mul(rule.HoldingCostRate).
		Div(decimal.NewFromInt(100)).Div(decimal.NewFromInt(365))

	// Risk.
	if res.LeadTimeDemand > 0 {
		res.StockoutRisk = math.Max(0, (res.LeadTimeDemand-float64(currentStock))/res.LeadTimeDemand)
	}
	res.OverstockRisk = overstockRisk(currentStock, res.RecommendedOrderQuantity, avgDaily, rule.LeadTimeDays)

	res.Confidence = res.Demand.Confidence
	res.DataQuality = res.Demand.DataQuality
	c.addInsights(res)

	return res
}

func invalid(res *Result, msg string) *Result {
	res.Valid = false
	res.ShouldReorderNow = false
	res.ValidationErrors = append(res.ValidationErrors, msg)
	return res
}

// applyForecast queries the forecast port for the lead-time horizon. Errors
// reduce to a warning and the history-based path.
func (c *Calculator) applyForecast(ctx context.Context, rule *types.ReorderRule, res *Result) {
	if c.forecast == nil {
		res.Warnings = append(res.Warnings, "forecast unavailable: no forecast service configured")
		return
	}
	horizon := rule.ForecastHorizonDays
	if horizon <= 0 {
		horizon = rule.LeadTimeDays
	}
	if horizon <= 0 {
		horizon = 7
	}
	fc, err := c.forecast.GenerateDemandForecast(ctx, rule.TenantID, ports.ForecastRequest{
		ProductID:   rule.ProductID,
		LocationID:  rule.LocationID,
		HorizonDays: horizon,
		Granularity: "daily",
	})
	if err != nil || fc == nil || !fc.Success {
		res.Warnings = append(res.Warnings, "forecast unavailable; falling back to stock-level logic")
		return
	}
	total := fc.TotalDemand()
	res.ForecastDemand = &total
	res.ForecastConfidence = fc.OverallConfidence
}

// orderQuantity computes the raw quantity by rule type, then applies min,
// max and budget constraints in that order.
func (c *Calculator) orderQuantity(rule *types.ReorderRule, res *Result, currentStock int64, avgDaily float64, unitCost decimal.Decimal) int64 {
	var qty int64

	switch rule.RuleType {
	case types.RuleTypeEOQ:
		eoq, err := ComputeEOQ(rule.AnnualDemand, rule.OrderingCost, unitCost, rule.HoldingCostRate, rule.ReorderQuantity)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("EOQ inputs invalid: %v; using fixed quantity", err))
			qty = rule.ReorderQuantity
		} else {
			res.EOQ = eoq
			qty = eoq.EOQ
		}
	case types.RuleTypeDemandBased:
		horizon := rule.ForecastHorizonDays
		if horizon <= 0 {
			horizon = rule.LeadTimeDays
		}
		mult := rule.DemandMultiplier
		if mult <= 0 {
			mult = 1.0
		}
		demand := avgDaily * float64(horizon)
		if res.ForecastDemand != nil {
			demand = *res.ForecastDemand
		}
		qty = int64(math.Round(demand * mult))
	case types.RuleTypeMinMax:
		qty = rule.MaxStockLevel - currentStock
		if qty < 0 {
			qty = 0
		}
	case types.RuleTypeSeasonal:
		qty = int64(math.Round(float64(rule.ReorderQuantity) * res.SeasonalFactor))
	default: // FIXED_QUANTITY
		qty = rule.ReorderQuantity
	}

	if rule.MinOrderQuantity > 0 && qty < rule.MinOrderQuantity {
		qty = rule.MinOrderQuantity
	}
	if rule.MaxOrderQuantity > 0 && qty > rule.MaxOrderQuantity {
		qty = rule.MaxOrderQuantity
	}
	if rule.MaxOrderValue.IsPositive() && unitCost.IsPositive() {
		cap := rule.MaxOrderValue.Div(unitCost).IntPart()
		if qty > cap {
			qty = cap
		}
	}
	if qty < 0 {
		qty = 0
	}
	return qty
}

// urgencyScore ranks stock-depletion proximity on 0..10; the first matching
// stock condition wins, then days-of-supply may raise the floor.
func urgencyScore(currentStock, reorderPoint int64, daysOfSupply float64, leadTimeDays int) int {
	score := 1
	rp := float64(reorderPoint)
	cs := float64(currentStock)

	switch {
	case currentStock <= 0:
		score = 10
	case rp > 0 && cs <= rp*0.25:
		score = 9
	case rp > 0 && cs <= rp*0.50:
		score = 7
	case rp > 0 && cs <= rp*0.70:
		score = 5
	}

	if leadTimeDays > 0 && daysOfSupply > 0 {
		switch {
		case daysOfSupply <= float64(leadTimeDays):
			if score < 8 {
				score = 8
			}
		case daysOfSupply <= float64(2*leadTimeDays):
			if score < 3 {
				score = 3
			}
		}
	}
	return score
}

func daysOfSupply(currentStock int64, avgDaily float64) float64 {
	if avgDaily <= 0 {
		return math.Inf(1)
	}
	return float64(currentStock) / avgDaily
}

// overstockRisk estimates the chance the post-order stock outlives demand by
// more than lead time plus a month.
func overstockRisk(currentStock, orderQty int64, avgDaily float64, leadTimeDays int) float64 {
	if avgDaily <= 0 {
		return 0
	}
	futureDays := float64(currentStock+orderQty) / avgDaily
	window := float64(leadTimeDays + 30)
	return math.Min(1, math.Max(0, (futureDays-window)/window))
}

func (c *Calculator) addInsights(res *Result) {
	if res.StockoutRisk > 0.3 {
		res.Insights = append(res.Insights,
			fmt.Sprintf("stockout risk %.0f%%: consider expediting or raising safety stock", res.StockoutRisk*100))
	}
	if res.OverstockRisk > 0.3 {
		res.Insights = append(res.Insights,
			fmt.Sprintf("overstock risk %.0f%%: consider reducing order quantity", res.OverstockRisk*100))
	}
	if res.Confidence < 0.7 {
		res.Insights = append(res.Insights,
			"low demand confidence: recommendation based on sparse or volatile history")
	}
	if res.Demand.Trend == TrendIncreasing {
		res.Insights = append(res.Insights,
			fmt.Sprintf("demand trending up %.1f%% over the lookback window", res.Demand.TrendChangePct))
	}
	if res.Demand.Trend == TrendDecreasing {
		res.Insights = append(res.Insights,
			fmt.Sprintf("demand trending down %.1f%% over the lookback window", res.Demand.TrendChangePct))
	}
}
