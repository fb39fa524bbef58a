package calc

import "math"

// zTable maps service level to the standard normal Z-score. Lookups snap to
// the nearest listed level.
var zTable = []struct {
	serviceLevel float64
	z            float64
}{
	{0.50, 0.00},
	{0.60, 0.25},
	{0.70, 0.52},
	{0.80, 0.84},
	{0.85, 1.04},
	{0.90, 1.28},
	{0.95, 1.65},
	{0.97, 1.88},
	{0.98, 2.05},
	{0.99, 2.33},
	{0.995, 2.58},
	{0.999, 3.09},
}

// ZScore returns the Z multiple for a target service level, selecting the
// nearest table entry.
func ZScore(serviceLevel float64) float64 {
	best := zTable[0]
	bestDist := math.Abs(serviceLevel - best.serviceLevel)
	for _, row := range zTable[1:] {
		dist := math.Abs(serviceLevel - row.serviceLevel)
		if dist < bestDist {
			best = row
			bestDist = dist
		}
	}
	return best.z
}

// SafetyStock computes the buffer covering demand variance over the lead
// time at the target service level. The result is rounded and never
// negative.
func SafetyStock(demandVariance float64, leadTimeDays int, serviceLevel float64) int64 {
	if leadTimeDays <= 0 || demandVariance <= 0 {
		return 0
	}
	leadTimeVariance := float64(leadTimeDays) * demandVariance
	ss := math.Round(ZScore(serviceLevel) * math.Sqrt(leadTimeVariance))
	if ss < 0 {
		return 0
	}
	return int64(ss)
}

// StockoutProbability is the residual risk at a service level.
func StockoutProbability(serviceLevel float64) float64 {
	p := 1 - serviceLevel
	if p < 0 {
		return 0
	}
	return p
}
