// Package supplier ranks and selects suppliers for a reorder using weighted
// multi-criteria scoring, an archipelago shipping cost model and an optional
// supply-chain disruption risk assessment.
package supplier

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/pkg/cache"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

// costCacheTTL bounds how long historical cost lookups are reused.
const costCacheTTL = time.Hour

// Request describes one selection problem.
type Request struct {
	TenantID      string
	Product       *types.Product
	Rule          *types.ReorderRule
	OrderQuantity int64
	Urgency       int

	Budget          *decimal.Decimal
	Deadline        *time.Time
	MinQualityScore float64
	IncludeIDs      []string
	ExcludeIDs      []string

	Method   types.SelectionMethod   // overrides the rule's method when set
	Criteria *types.SelectionWeights // overrides rule weights when set

	IncludeRiskAssessment bool
	RiskScope             AssessmentScope
}

// ScoredSupplier is one candidate with its per-dimension scores.
type ScoredSupplier struct {
	Supplier *types.Supplier `json:"supplier"`

	CostScore        float64 `json:"costScore"`
	QualityScore     float64 `json:"qualityScore"`
	DeliveryScore    float64 `json:"deliveryScore"`
	ReliabilityScore float64 `json:"reliabilityScore"`
	CapacityScore    float64 `json:"capacityScore"`
	LocationScore    float64 `json:"locationScore"`
	TotalScore       float64 `json:"totalScore"`

	FinalUnitCost decimal.Decimal `json:"finalUnitCost"`
	ShippingCost  decimal.Decimal `json:"shippingCost"`
	EstimatedCost decimal.Decimal `json:"estimatedCost"` // qty * finalUnitCost

	Zone            Zone    `json:"zone"`
	Confidence      float64 `json:"confidence"`
	SelectionReason string  `json:"selectionReason,omitempty"`
}

// Alternatives are the runner-up choices by different priorities.
type Alternatives struct {
	SecondBest    *ScoredSupplier `json:"secondBest,omitempty"`
	BudgetChoice  *ScoredSupplier `json:"budgetChoice,omitempty"`
	QualityChoice *ScoredSupplier `json:"qualityChoice,omitempty"`
	SpeedChoice   *ScoredSupplier `json:"speedChoice,omitempty"`
}

// CostBenefit compares the selected supplier against the cheapest candidate.
type CostBenefit struct {
	SelectedCost decimal.Decimal `json:"selectedCost"`
	CheapestCost decimal.Decimal `json:"cheapestCost"`
	CostPremium  decimal.Decimal `json:"costPremium"`
	QualityGain  float64         `json:"qualityGain"`
}

// Result is the outcome of a selection run.
type Result struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`

	Ranked   []*ScoredSupplier `json:"ranked,omitempty"`
	Selected *ScoredSupplier   `json:"selected,omitempty"`

	Alternatives Alternatives `json:"alternatives"`
	CostBenefit  *CostBenefit `json:"costBenefit,omitempty"`

	PredictedDeliveryDays int     `json:"predictedDeliveryDays,omitempty"`
	PredictedQuality      float64 `json:"predictedQuality,omitempty"`
	PredictedReliability  float64 `json:"predictedReliability,omitempty"`

	Risk *RiskAssessment `json:"risk,omitempty"`

	// SupplierScores is the wire snapshot persisted into calculationDetails.
	SupplierScores map[string]float64 `json:"supplierScores"`
	Warnings       []string           `json:"warnings,omitempty"`
}

// Selector scores and picks suppliers.
type Selector struct {
	suppliers ports.SupplierPort
	costCache *cache.MemoryCache
	clock     ports.Clock
	destZone  Zone
	logger    *logrus.Entry
}

// NewSelector wires the selector. destZone is the receiving location's
// shipping zone.
func NewSelector(suppliers ports.SupplierPort, costCache *cache.MemoryCache, clock ports.Clock, destZone Zone) *Selector {
	return &Selector{
		suppliers: suppliers,
		costCache: costCache,
		clock:     clock,
		destZone:  destZone,
		logger:    logrus.WithField("component", "supplier-selector"),
	}
}

// Select runs eligibility filtering, scoring and method-specific selection.
// A failure to find any eligible supplier is a success=false result with a
// reason, not an error.
func (s *Selector) Select(ctx context.Context, req Request) (*Result, error) {
	res := &Result{SupplierScores: make(map[string]float64)}
	now := s.clock.Now()

	if req.Product == nil || req.Rule == nil {
		return nil, types.NewValidationError("selection requires product and rule")
	}
	if req.OrderQuantity <= 0 {
		res.Reason = "order quantity is zero"
		return res, nil
	}

	candidates, err := s.loadCandidates(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		res.Reason = "no eligible suppliers"
		return res, nil
	}

	unitCost := req.Rule.UnitCost
	if unitCost.IsZero() {
		unitCost = req.Product.UnitCost
	}

	// Capacity proxy: the supplier must be able to carry the order value.
	orderValue := unitCost.Mul(decimal.NewFromInt(req.OrderQuantity))
	eligible := candidates[:0]
	for _, sup := range candidates {
		if sup.CanAcceptOrder(orderValue) {
			eligible = append(eligible, sup)
		}
	}
	if len(eligible) == 0 {
		res.Reason = "no supplier has credit capacity for the order"
		return res, nil
	}

	scored := make([]*ScoredSupplier, 0, len(eligible))
	for _, sup := range eligible {
		scored = append(scored, s.score(ctx, req, sup, unitCost, now))
	}

	// Budget compatibility: prefer candidates within budget, but fall back
	// to the full set rather than failing the selection outright.
	if req.Budget != nil && req.Budget.IsPositive() {
		within := filterWithinBudget(scored, *req.Budget)
		if len(within) > 0 {
			scored = within
		} else {
			res.Warnings = append(res.Warnings, "no supplier fits the budget; ranking all candidates")
		}
	}
	if req.MinQualityScore > 0 {
		filtered := scored[:0]
		for _, c := range scored {
			if c.Supplier.QualityScore >= req.MinQualityScore {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) > 0 {
			scored = filtered
		} else {
			res.Warnings = append(res.Warnings, "no supplier meets the quality floor; ranking all candidates")
		}
	}
	if req.Deadline != nil {
		filtered := scored[:0]
		for _, c := range scored {
			eta := now.AddDate(0, 0, c.Supplier.LeadTimeDays)
			if !eta.After(*req.Deadline) {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) > 0 {
			scored = filtered
		} else {
			res.Warnings = append(res.Warnings, "no supplier can meet the deadline; ranking all candidates")
		}
	}

	method := req.Method
	if method == "" {
		method = req.Rule.SupplierSelectionMethod
	}
	if method == "" {
		method = types.SelectionBalanced
	}

	rankByMethod(scored, method)
	res.Ranked = scored
	for _, c := range scored {
		res.SupplierScores[c.Supplier.ID] = round2(c.TotalScore)
	}

	selected := s.pick(scored, method, req.Rule.PrimarySupplierID)
	if selected == nil {
		res.Reason = "no supplier selected"
		return res, nil
	}

	res.Success = true
	res.Selected = selected
	res.Reason = selected.SelectionReason
	res.PredictedDeliveryDays = selected.Supplier.LeadTimeDays
	res.PredictedQuality = selected.Supplier.QualityScore
	res.PredictedReliability = selected.Supplier.OnTimeDeliveryRate
	res.Alternatives = buildAlternatives(scored, selected)
	res.CostBenefit = buildCostBenefit(scored, selected)

	if req.IncludeRiskAssessment {
		scope := req.RiskScope
		if scope == "" {
			scope = ScopeBasic
		}
		res.Risk = AssessDisruptionRisk(selected.Supplier, selected.Zone, now, scope)
	}

	return res, nil
}

// loadCandidates queries active suppliers and applies allow/include/exclude
// list intersection.
func (s *Selector) loadCandidates(ctx context.Context, req Request) ([]*types.Supplier, error) {
	filters := ports.SupplierFilters{Status: types.SupplierStatusActive, ExcludeIDs: req.ExcludeIDs}

	allow := intersect(req.Rule.AllowedSupplierIDs, req.IncludeIDs)
	if len(req.Rule.AllowedSupplierIDs) > 0 || len(req.IncludeIDs) > 0 {
		if len(allow) == 0 {
			return nil, nil
		}
		filters.IDs = allow
	}

	suppliers, err := s.suppliers.Query(ctx, req.TenantID, filters)
	if err != nil {
		return nil, types.NewPortError(true, "supplier query failed", err)
	}

	out := suppliers[:0]
	for _, sup := range suppliers {
		if sup.IsDeleted || sup.Status != types.SupplierStatusActive || sup.TenantID != req.TenantID {
			continue
		}
		out = append(out, sup)
	}
	return out, nil
}

// score computes every dimension for one candidate.
func (s *Selector) score(ctx context.Context, req Request, sup *types.Supplier, unitCost decimal.Decimal, now time.Time) *ScoredSupplier {
	zone := ZoneOf(sup.Province, sup.City)

	shipping := EstimateShipping(zone, s.destZone, req.Product.WeightKg, req.Product.VolumeM3, req.OrderQuantity, now)
	perUnitShipping := decimal.Zero
	if req.OrderQuantity > 0 {
		perUnitShipping = shipping.Div(decimal.NewFromInt(req.OrderQuantity))
	}

	discounted := unitCost.Mul(decimal.NewFromInt(1).Sub(sup.DiscountPercent.Div(decimal.NewFromInt(100))))
	final := discounted
	if hist := s.historicalCost(ctx, req.TenantID, sup.ID, req.Product.ID); hist.IsPositive() {
		final = hist.Mul(decimal.NewFromFloat(0.6)).Add(discounted.Mul(decimal.NewFromFloat(0.4)))
	}
	final = final.Add(perUnitShipping)

	weights := defaultWeights(firstNonEmptyMethod(req.Method, req.Rule.SupplierSelectionMethod))
	if req.Rule.SupplierWeights != nil {
		weights = *req.Rule.SupplierWeights
	}
	if req.Criteria != nil {
		weights = *req.Criteria
	}

	orderValue := final.Mul(decimal.NewFromInt(req.OrderQuantity))
	c := &ScoredSupplier{
		Supplier:         sup,
		CostScore:        costScore(req.Product.RetailPrice, final),
		QualityScore:     qualityScore(sup),
		DeliveryScore:    deliveryScore(sup, req.Urgency),
		ReliabilityScore: reliabilityScore(sup),
		CapacityScore:    capacityScore(sup, orderValue, now),
		LocationScore:    locationScore(sup),
		FinalUnitCost:    final.Round(2),
		ShippingCost:     shipping,
		EstimatedCost:    orderValue.Round(2),
		Zone:             zone,
		Confidence:       selectionConfidence(sup, now),
	}
	c.TotalScore = c.CostScore*weights.Cost + c.QualityScore*weights.Quality +
		c.DeliveryScore*weights.Delivery + c.ReliabilityScore*weights.Reliability
	return c
}

// historicalCost returns the 6-month weighted average unit cost, cached for
// an hour. Zero means no history.
func (s *Selector) historicalCost(ctx context.Context, tenantID, supplierID, productID string) decimal.Decimal {
	key := fmt.Sprintf("cost:%s:%s:%s", tenantID, supplierID, productID)
	v, err := s.costCache.GetOrCompute(key, costCacheTTL, func() (any, error) {
		avg, err := s.suppliers.AverageUnitCost(ctx, tenantID, supplierID, productID, 6*30*24*time.Hour)
		if err != nil {
			return decimal.Zero, nil // history is best-effort
		}
		return avg, nil
	})
	if err != nil {
		return decimal.Zero
	}
	return v.(decimal.Decimal)
}

// rankByMethod sorts candidates by the method's primary dimension, breaking
// ties by reliability then order history.
func rankByMethod(scored []*ScoredSupplier, method types.SelectionMethod) {
	key := func(c *ScoredSupplier) float64 {
		switch method {
		case types.SelectionCostOptimal:
			return c.CostScore
		case types.SelectionQualityOptimal:
			return c.QualityScore
		case types.SelectionDeliveryOptimal:
			return c.DeliveryScore
		default:
			return c.TotalScore
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		ki, kj := key(scored[i]), key(scored[j])
		if ki != kj {
			return ki > kj
		}
		if scored[i].ReliabilityScore != scored[j].ReliabilityScore {
			return scored[i].ReliabilityScore > scored[j].ReliabilityScore
		}
		return scored[i].Supplier.TotalOrders > scored[j].Supplier.TotalOrders
	})
}

// primaryScoreFloor is the minimum total score for the configured primary
// supplier to keep its slot.
const primaryScoreFloor = 60.0

// pick applies the method's selection semantics to the ranked list.
func (s *Selector) pick(scored []*ScoredSupplier, method types.SelectionMethod, primaryID string) *ScoredSupplier {
	if len(scored) == 0 {
		return nil
	}

	switch method {
	case types.SelectionPrimary:
		if primaryID != "" {
			for _, c := range scored {
				if c.Supplier.ID == primaryID && c.TotalScore >= primaryScoreFloor {
					c.SelectionReason = "Primary supplier meets score threshold"
					return c
				}
			}
		}
		best := scored[0]
		best.SelectionReason = "Primary unavailable; best balanced score"
		return best
	case types.SelectionCostOptimal:
		best := scored[0]
		best.SelectionReason = "Selected for lowest cost"
		return best
	case types.SelectionQualityOptimal:
		best := scored[0]
		best.SelectionReason = "Selected for highest quality"
		return best
	case types.SelectionDeliveryOptimal:
		best := scored[0]
		best.SelectionReason = "Selected for fastest delivery"
		return best
	default:
		best := scored[0]
		best.SelectionReason = "Best balanced score"
		return best
	}
}

func buildAlternatives(scored []*ScoredSupplier, selected *ScoredSupplier) Alternatives {
	alt := Alternatives{}
	var budget, quality, speed *ScoredSupplier
	for _, c := range scored {
		if c == selected {
			continue
		}
		if alt.SecondBest == nil {
			alt.SecondBest = c
		}
		if budget == nil || c.EstimatedCost.LessThan(budget.EstimatedCost) {
			budget = c
		}
		if quality == nil || c.QualityScore > quality.QualityScore {
			quality = c
		}
		if speed == nil || c.Supplier.LeadTimeDays < speed.Supplier.LeadTimeDays {
			speed = c
		}
	}
	alt.BudgetChoice = budget
	alt.QualityChoice = quality
	alt.SpeedChoice = speed
	return alt
}

func buildCostBenefit(scored []*ScoredSupplier, selected *ScoredSupplier) *CostBenefit {
	cheapest := selected
	for _, c := range scored {
		if c.EstimatedCost.LessThan(cheapest.EstimatedCost) {
			cheapest = c
		}
	}
	return &CostBenefit{
		SelectedCost: selected.EstimatedCost,
		CheapestCost: cheapest.EstimatedCost,
		CostPremium:  selected.EstimatedCost.Sub(cheapest.EstimatedCost),
		QualityGain:  selected.QualityScore - cheapest.QualityScore,
	}
}

func filterWithinBudget(scored []*ScoredSupplier, budget decimal.Decimal) []*ScoredSupplier {
	var out []*ScoredSupplier
	for _, c := range scored {
		if c.EstimatedCost.LessThanOrEqual(budget) {
			out = append(out, c)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	var out []string
	for _, x := range b {
		if set[x] {
			out = append(out, x)
		}
	}
	return out
}

func firstNonEmptyMethod(methods ...types.SelectionMethod) types.SelectionMethod {
	for _, m := range methods {
		if m != "" {
			return m
		}
	}
	return types.SelectionBalanced
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
