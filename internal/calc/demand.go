package calc

import (
	"math"
	"time"

	"github.com/stokcerdas/replenish/pkg/types"
)

// Trend classifications for demand history.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// DemandAnalysis summarizes outbound movement history for one item.
type DemandAnalysis struct {
	AverageDailyDemand     float64 `json:"averageDailyDemand"`
	Variance               float64 `json:"variance"`
	StdDev                 float64 `json:"stdDev"`
	Trend                  string  `json:"trend"`
	TrendChangePct         float64 `json:"trendChangePct"`
	DataPoints             int     `json:"dataPoints"`
	LookbackDays           int     `json:"lookbackDays"`
	CoefficientOfVariation float64 `json:"coefficientOfVariation"`
	Confidence             float64 `json:"confidence"`
	DataQuality            float64 `json:"dataQuality"`
}

// AnalyzeDemand aggregates ISSUE transactions over the lookback window into
// a daily demand vector and derives statistics from it. DataPoints counts
// days with actual movement; the vector length is always the full lookback.
func AnalyzeDemand(txs []types.InventoryTransaction, lookbackDays int, now time.Time) DemandAnalysis {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}

	daily := make([]float64, lookbackDays)
	windowStart := now.AddDate(0, 0, -lookbackDays)
	points := 0
	for _, tx := range txs {
		if tx.Type != types.TransactionIssue {
			continue
		}
		if tx.Date.Before(windowStart) || tx.Date.After(now) {
			continue
		}
		day := int(tx.Date.Sub(windowStart).Hours() / 24)
		if day < 0 {
			day = 0
		}
		if day >= lookbackDays {
			day = lookbackDays - 1
		}
		if daily[day] == 0 && tx.Quantity != 0 {
			points++
		}
		daily[day] += float64(tx.Quantity)
	}

	var sum float64
	for _, d := range daily {
		sum += d
	}
	avg := sum / float64(lookbackDays)

	var variance float64
	for _, d := range daily {
		diff := d - avg
		variance += diff * diff
	}
	variance /= float64(lookbackDays)
	stdDev := math.Sqrt(variance)

	trend, changePct := classifyTrend(daily, points)

	cv := stdDev / math.Max(avg, 0.1)

	confidence := math.Min(float64(points)/30.0, 1.0) * (1.0 - math.Min(variance/0.5, 1.0)*0.3)
	if confidence < 0.1 {
		confidence = 0.1
	}

	quality := 1.0
	switch {
	case points < 7:
		quality *= 0.4
	case points < 14:
		quality *= 0.7
	}
	switch {
	case cv > 2:
		quality *= 0.6
	case cv > 1:
		quality *= 0.8
	}

	return DemandAnalysis{
		AverageDailyDemand:     avg,
		Variance:               variance,
		StdDev:                 stdDev,
		Trend:                  trend,
		TrendChangePct:         changePct,
		DataPoints:             points,
		LookbackDays:           lookbackDays,
		CoefficientOfVariation: cv,
		Confidence:             confidence,
		DataQuality:            quality,
	}
}

// classifyTrend splits the daily vector in halves and compares averages.
// Fewer than 7 data points always reads as stable.
func classifyTrend(daily []float64, points int) (string, float64) {
	if points < 7 || len(daily) < 2 {
		return TrendStable, 0
	}

	mid := len(daily) / 2
	var earlierSum, recentSum float64
	for i, d := range daily {
		if i < mid {
			earlierSum += d
		} else {
			recentSum += d
		}
	}
	earlierAvg := earlierSum / float64(mid)
	recentAvg := recentSum / float64(len(daily)-mid)

	if earlierAvg == 0 {
		if recentAvg > 0 {
			return TrendIncreasing, 100
		}
		return TrendStable, 0
	}

	changePct := (recentAvg - earlierAvg) / earlierAvg * 100
	switch {
	case changePct > 10:
		return TrendIncreasing, changePct
	case changePct < -10:
		return TrendDecreasing, changePct
	default:
		return TrendStable, changePct
	}
}
