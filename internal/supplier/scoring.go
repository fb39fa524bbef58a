package supplier

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stokcerdas/replenish/pkg/types"
)

// defaultWeights returns the per-dimension weights for a selection method.
func defaultWeights(method types.SelectionMethod) types.SelectionWeights {
	switch method {
	case types.SelectionCostOptimal:
		return types.SelectionWeights{Cost: 0.60, Quality: 0.15, Delivery: 0.15, Reliability: 0.10}
	case types.SelectionQualityOptimal:
		return types.SelectionWeights{Cost: 0.10, Quality: 0.60, Delivery: 0.15, Reliability: 0.15}
	case types.SelectionDeliveryOptimal:
		return types.SelectionWeights{Cost: 0.15, Quality: 0.15, Delivery: 0.60, Reliability: 0.10}
	default: // PRIMARY and BALANCED
		return types.SelectionWeights{Cost: 0.30, Quality: 0.25, Delivery: 0.25, Reliability: 0.20}
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// costScore compares the supplier's landed unit cost against a benchmark of
// 90% of retail price. Cheaper than benchmark scores above 80.
func costScore(retailPrice, finalUnitCost decimal.Decimal) float64 {
	if !finalUnitCost.IsPositive() {
		return 0
	}
	benchmark := retailPrice.Mul(decimal.NewFromFloat(0.9))
	if !benchmark.IsPositive() {
		benchmark = finalUnitCost
	}
	ratio, _ := benchmark.Div(finalUnitCost).Float64()
	return clampScore(ratio * 80)
}

// qualityScore blends the 0..5 rating with the 0..100 quality metric.
func qualityScore(s *types.Supplier) float64 {
	return clampScore(s.Rating/5*50 + s.QualityScore/2)
}

// deliveryScore weighs on-time rate against lead time; urgent requests add
// a bonus for short lead times.
func deliveryScore(s *types.Supplier, urgency int) float64 {
	leadTimeScore := 100.0 - float64(s.LeadTimeDays-1)*5
	if leadTimeScore < 0 {
		leadTimeScore = 0
	}
	score := s.OnTimeDeliveryRate*0.7 + leadTimeScore*0.3
	if urgency >= 7 {
		bonus := (14 - float64(s.LeadTimeDays)) * 3
		if bonus > 0 {
			score += bonus
		}
	}
	return clampScore(score)
}

// reliabilityScore rewards order history depth, on-time performance and
// rating.
func reliabilityScore(s *types.Supplier) float64 {
	history := float64(s.TotalOrders) * 2
	if history > 50 {
		history = 50
	}
	return clampScore(history + s.OnTimeDeliveryRate*0.3 + s.Rating/5*20)
}

// capacityScore composites financial headroom, volume history, operational
// and quality signals, and recency, then applies a risk factor and the
// Indonesian context adjustments.
func capacityScore(s *types.Supplier, orderValue decimal.Decimal, now time.Time) float64 {
	// Financial headroom (25%).
	financial := 100.0
	if s.CreditLimit.IsPositive() {
		headroom := s.CreditLimit.Sub(s.TotalPurchaseAmount)
		if !headroom.IsPositive() {
			financial = 0
		} else if orderValue.IsPositive() {
			ratio, _ := headroom.Div(orderValue).Float64()
			financial = clampScore(ratio * 25)
		}
	}

	// Volume history (30%).
	volume := clampScore(float64(s.TotalOrders))

	// Operational (20%).
	operational := clampScore(s.OnTimeDeliveryRate)

	// Quality (15%).
	quality := clampScore(s.QualityScore)

	// Temporal: recency of the last order (10%).
	temporal := 50.0
	if s.LastOrderDate != nil {
		age := now.Sub(*s.LastOrderDate)
		switch {
		case age <= 30*24*time.Hour:
			temporal = 100
		case age <= 90*24*time.Hour:
			temporal = 80
		case age <= 180*24*time.Hour:
			temporal = 60
		default:
			temporal = 30
		}
	}

	score := financial*0.25 + volume*0.30 + operational*0.20 + quality*0.15 + temporal*0.10
	score *= capacityRiskFactor(s)

	// Indonesian context adjustments.
	if s.IsLocal() {
		score *= 1.10
		score *= 1.05 // shared timezone band simplifies coordination
	}
	if IsRamadan(now) {
		score *= 0.90
	}
	return clampScore(score)
}

// capacityRiskFactor discounts suppliers close to their credit ceiling or
// with weak delivery performance. Range [0.5, 1.0].
func capacityRiskFactor(s *types.Supplier) float64 {
	factor := 1.0
	if s.CreditLimit.IsPositive() {
		utilization, _ := s.TotalPurchaseAmount.Div(s.CreditLimit).Float64()
		if utilization > 0.9 {
			factor -= 0.3
		} else if utilization > 0.75 {
			factor -= 0.15
		}
	}
	if s.OnTimeDeliveryRate > 0 && s.OnTimeDeliveryRate < 70 {
		factor -= 0.2
	}
	if factor < 0.5 {
		factor = 0.5
	}
	return factor
}

// locationScore favors domestic suppliers.
func locationScore(s *types.Supplier) float64 {
	if s.IsLocal() {
		return 100
	}
	return 40
}

// selectionConfidence reflects how much history backs the scores.
func selectionConfidence(s *types.Supplier, now time.Time) float64 {
	confidence := 1.0
	if s.TotalOrders < 10 {
		confidence *= 0.7
	}
	if s.OnTimeDeliveryRate > 0 && s.OnTimeDeliveryRate < 90 {
		confidence *= 0.8
	}
	if s.LastOrderDate != nil && now.Sub(*s.LastOrderDate) > 6*30*24*time.Hour {
		confidence *= 0.9
	}
	if confidence < 0.3 {
		confidence = 0.3
	}
	return confidence
}
