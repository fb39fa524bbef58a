package supplier

import (
	"time"

	"github.com/stokcerdas/replenish/pkg/types"
)

// RiskLevel buckets an overall risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// AssessmentScope controls how many risk factor families are evaluated.
type AssessmentScope string

const (
	ScopeBasic         AssessmentScope = "basic"
	ScopeComprehensive AssessmentScope = "comprehensive"
	ScopeEnterprise    AssessmentScope = "enterprise"
)

// RiskFactor is one identified disruption risk.
type RiskFactor struct {
	Type            string    `json:"type"`
	Category        string    `json:"category"`
	Probability     float64   `json:"probability"` // 0..1
	Impact          float64   `json:"impact"`      // 0..10
	RiskScore       float64   `json:"riskScore"`   // probability * impact * 10, 0..100
	Severity        RiskLevel `json:"severity"`
	GeographicScope string    `json:"geographicScope,omitempty"`
	Sources         []string  `json:"sources,omitempty"`
	Confidence      float64   `json:"confidence"`
}

// RiskAssessment is the full disruption risk report for a supplier.
type RiskAssessment struct {
	SupplierID         string          `json:"supplierId"`
	Scope              AssessmentScope `json:"scope"`
	AssessedAt         time.Time       `json:"assessedAt"`
	OverallProbability float64         `json:"overallProbability"` // 0..1
	OverallScore       float64         `json:"overallScore"`       // 0..100
	OverallLevel       RiskLevel       `json:"overallLevel"`
	Factors            []RiskFactor    `json:"factors"`
	Mitigations        []string        `json:"mitigations,omitempty"`
	ContingencyPlans   []string        `json:"contingencyPlans,omitempty"`
}

// zoneDisasterProbability is the annualized natural disaster exposure per
// shipping zone. Indonesia sits on the Ring of Fire; eastern zones carry the
// highest seismic and volcanic exposure.
var zoneDisasterProbability = map[Zone]float64{
	ZoneJakartaMetro: 0.15, // flooding, land subsidence
	ZoneJava:         0.20, // volcanic, seismic
	ZoneSumatra:      0.25, // seismic, tsunami
	ZoneKalimantan:   0.10, // haze, flooding
	ZoneSulawesi:     0.22, // seismic
	ZoneEastern:      0.30, // seismic, remote logistics
	ZoneBaliLombok:   0.20, // seismic, volcanic
}

// AssessDisruptionRisk evaluates the disruption risk of sourcing from a
// supplier. Basic scope covers the operational and geographic families;
// comprehensive adds cyber and pandemic exposure; enterprise keeps all
// families with higher confidence sourcing.
func AssessDisruptionRisk(s *types.Supplier, zone Zone, now time.Time, scope AssessmentScope) *RiskAssessment {
	if scope == "" {
		scope = ScopeBasic
	}
	a := &RiskAssessment{
		SupplierID: s.ID,
		Scope:      scope,
		AssessedAt: now,
	}

	a.Factors = append(a.Factors, naturalDisasterFactor(zone))
	a.Factors = append(a.Factors, dependencyFactor(s))
	a.Factors = append(a.Factors, financialFactor(s))
	a.Factors = append(a.Factors, economicFactor(s))
	a.Factors = append(a.Factors, operationalFactor(s))
	if f, ok := seasonalFactor(now); ok {
		a.Factors = append(a.Factors, f)
	}
	a.Factors = append(a.Factors, qualityFactor(s))
	a.Factors = append(a.Factors, regulatoryFactor(s))
	a.Factors = append(a.Factors, logisticsFactor(zone))

	if scope == ScopeComprehensive || scope == ScopeEnterprise {
		a.Factors = append(a.Factors, RiskFactor{
			Type: "cyber", Category: "technology",
			Probability: 0.08, Impact: 6,
			Sources:    []string{"industry baseline"},
			Confidence: 0.5,
		})
		a.Factors = append(a.Factors, RiskFactor{
			Type: "pandemic", Category: "health",
			Probability: 0.03, Impact: 9,
			Sources:    []string{"historical frequency"},
			Confidence: 0.4,
		})
	}

	for i := range a.Factors {
		f := &a.Factors[i]
		f.RiskScore = f.Probability * f.Impact * 10
		f.Severity = levelFor(f.RiskScore)
		if f.Confidence == 0 {
			f.Confidence = 0.6
		}
		if scope == ScopeEnterprise && f.Confidence < 0.7 {
			f.Confidence = 0.7
		}
	}

	// Independent factors: P(any) = 1 - prod(1 - p_i).
	survive := 1.0
	var weighted, weights float64
	for _, f := range a.Factors {
		survive *= 1 - f.Probability
		weighted += f.RiskScore * f.Confidence
		weights += f.Confidence
	}
	a.OverallProbability = 1 - survive
	if weights > 0 {
		a.OverallScore = weighted / weights
	}
	a.OverallLevel = levelFor(a.OverallScore)

	a.Mitigations = mitigations(a.Factors)
	a.ContingencyPlans = contingencies(a.Factors, a.OverallLevel)
	return a
}

func levelFor(score float64) RiskLevel {
	switch {
	case score < 40:
		return RiskLow
	case score < 60:
		return RiskMedium
	case score < 80:
		return RiskHigh
	default:
		return RiskCritical
	}
}

func naturalDisasterFactor(zone Zone) RiskFactor {
	p := zoneDisasterProbability[zone]
	if p == 0 {
		p = 0.15
	}
	return RiskFactor{
		Type: "natural_disaster", Category: "geographic",
		Probability: p, Impact: 8,
		GeographicScope: string(zone),
		Sources:         []string{"BNPB zone exposure"},
		Confidence:      0.7,
	}
}

// dependencyFactor flags thin order history as concentration risk: little is
// known about how the supplier behaves under load.
func dependencyFactor(s *types.Supplier) RiskFactor {
	p := 0.10
	if s.TotalOrders < 5 {
		p = 0.35
	} else if s.TotalOrders < 20 {
		p = 0.20
	}
	return RiskFactor{
		Type: "supplier_dependency", Category: "operational",
		Probability: p, Impact: 6,
		Sources:    []string{"order history depth"},
		Confidence: 0.8,
	}
}

func financialFactor(s *types.Supplier) RiskFactor {
	p := 0.08
	if s.CreditLimit.IsPositive() {
		util, _ := s.TotalPurchaseAmount.Div(s.CreditLimit).Float64()
		if util > 0.9 {
			p = 0.30
		} else if util > 0.75 {
			p = 0.18
		}
	}
	return RiskFactor{
		Type: "financial_distress", Category: "financial",
		Probability: p, Impact: 7,
		Sources:    []string{"credit utilization"},
		Confidence: 0.6,
	}
}

func economicFactor(s *types.Supplier) RiskFactor {
	p := 0.10
	if !s.IsLocal() {
		p = 0.20 // currency and import exposure
	}
	return RiskFactor{
		Type: "economic", Category: "financial",
		Probability: p, Impact: 5,
		Sources:    []string{"IDR volatility baseline"},
		Confidence: 0.5,
	}
}

func operationalFactor(s *types.Supplier) RiskFactor {
	p := 0.08
	if s.OnTimeDeliveryRate > 0 {
		miss := (100 - s.OnTimeDeliveryRate) / 100
		p = 0.05 + miss*0.5
		if p > 0.6 {
			p = 0.6
		}
	}
	return RiskFactor{
		Type: "operational", Category: "operational",
		Probability: p, Impact: 6,
		Sources:    []string{"on-time delivery rate"},
		Confidence: 0.8,
	}
}

// seasonalFactor covers the Ramadan and Chinese New Year logistics crunches.
func seasonalFactor(now time.Time) (RiskFactor, bool) {
	if IsRamadan(now) {
		return RiskFactor{
			Type: "seasonal", Category: "temporal",
			Probability: 0.35, Impact: 5,
			Sources:    []string{"Ramadan logistics surge"},
			Confidence: 0.9,
		}, true
	}
	if now.Month() == time.February {
		return RiskFactor{
			Type: "seasonal", Category: "temporal",
			Probability: 0.20, Impact: 4,
			Sources:    []string{"Chinese New Year window"},
			Confidence: 0.8,
		}, true
	}
	return RiskFactor{}, false
}

func qualityFactor(s *types.Supplier) RiskFactor {
	p := 0.05
	if s.QualityScore > 0 && s.QualityScore < 70 {
		p = 0.30
	} else if s.QualityScore > 0 && s.QualityScore < 85 {
		p = 0.15
	}
	return RiskFactor{
		Type: "quality", Category: "operational",
		Probability: p, Impact: 6,
		Sources:    []string{"quality score"},
		Confidence: 0.7,
	}
}

func regulatoryFactor(s *types.Supplier) RiskFactor {
	p := 0.05
	if !s.IsLocal() {
		p = 0.15 // import licensing and customs
	}
	return RiskFactor{
		Type: "regulatory", Category: "compliance",
		Probability: p, Impact: 5,
		Sources:    []string{"import regime"},
		Confidence: 0.5,
	}
}

func logisticsFactor(zone Zone) RiskFactor {
	p := 0.10
	switch zone {
	case ZoneEastern:
		p = 0.30
	case ZoneKalimantan, ZoneSulawesi:
		p = 0.18
	}
	return RiskFactor{
		Type: "logistics", Category: "geographic",
		Probability: p, Impact: 6,
		GeographicScope: string(zone),
		Sources:         []string{"inter-island transit variance"},
		Confidence:      0.7,
	}
}

// mitigations returns strategies keyed to the factor types present with a
// meaningful score.
func mitigations(factors []RiskFactor) []string {
	var out []string
	for _, f := range factors {
		if f.RiskScore < 15 {
			continue
		}
		switch f.Type {
		case "natural_disaster":
			out = append(out, "Qualify a backup supplier in a different zone")
		case "supplier_dependency":
			out = append(out, "Split volume across at least two suppliers")
		case "financial_distress":
			out = append(out, "Shorten payment terms and monitor credit utilization")
		case "operational":
			out = append(out, "Add lead time buffer to safety stock for this supplier")
		case "seasonal":
			out = append(out, "Pull orders forward ahead of the seasonal peak")
		case "quality":
			out = append(out, "Require incoming inspection for this supplier's shipments")
		case "logistics":
			out = append(out, "Prefer sea freight consolidation with earlier order dates")
		case "economic", "regulatory":
			out = append(out, "Evaluate a domestic alternative supplier")
		}
	}
	return dedupe(out)
}

func contingencies(factors []RiskFactor, level RiskLevel) []string {
	if level == RiskLow {
		return nil
	}
	out := []string{"Maintain an approved alternate supplier list for this product"}
	for _, f := range factors {
		if f.Severity == RiskHigh || f.Severity == RiskCritical {
			switch f.Category {
			case "geographic":
				out = append(out, "Pre-position safety stock at the destination warehouse")
			case "financial":
				out = append(out, "Cap open order value with this supplier")
			case "operational":
				out = append(out, "Define an expedite path with a secondary carrier")
			}
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
