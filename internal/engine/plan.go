package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stokcerdas/replenish/pkg/types"
)

// PlannedRule is one rule in a tenant's execution plan with its priority
// inputs from the last evaluation.
type PlannedRule struct {
	Rule       *types.ReorderRule `json:"rule"`
	Urgency    int                `json:"urgency"`
	Confidence float64            `json:"confidence"`
	Estimated  decimal.Decimal    `json:"estimatedValue"`
}

// Plan is the prioritized work list for one tenant tick, with aggregate risk
// signals for operators.
type Plan struct {
	TenantID string        `json:"tenantId"`
	Rules    []PlannedRule `json:"rules"`

	TotalEstimatedValue  decimal.Decimal `json:"totalEstimatedValue"`
	BudgetExceedanceRisk float64         `json:"budgetExceedanceRisk"`
	SystemOverloadRisk   float64         `json:"systemOverloadRisk"`
	HighRiskRules        []string        `json:"highRiskRules,omitempty"`
}

// systemCapacity is the nominal concurrent job count used to normalize
// overload risk.
const systemCapacity = 100.0

// BuildPlan orders rules by urgency-weighted confidence, highest first, and
// derives the plan's risk signals. remainingBudget below zero means
// unlimited.
func BuildPlan(tenantID string, rules []PlannedRule, remainingBudget decimal.Decimal, activeJobs int) *Plan {
	sort.SliceStable(rules, func(i, j int) bool {
		pi := float64(rules[i].Urgency) * rules[i].Confidence
		pj := float64(rules[j].Urgency) * rules[j].Confidence
		if pi != pj {
			return pi > pj
		}
		return rules[i].Urgency > rules[j].Urgency
	})

	plan := &Plan{
		TenantID:            tenantID,
		Rules:               rules,
		TotalEstimatedValue: decimal.Zero,
	}
	for _, pr := range rules {
		plan.TotalEstimatedValue = plan.TotalEstimatedValue.Add(pr.Estimated)
		if pr.Urgency >= 8 || (pr.Confidence > 0 && pr.Confidence < 0.6) {
			plan.HighRiskRules = append(plan.HighRiskRules, pr.Rule.ID)
		}
	}

	if remainingBudget.IsPositive() {
		ratio, _ := plan.TotalEstimatedValue.Div(remainingBudget).Float64()
		if ratio > 1 {
			ratio = 1
		}
		plan.BudgetExceedanceRisk = ratio
	}

	plan.SystemOverloadRisk = float64(activeJobs) / systemCapacity
	if plan.SystemOverloadRisk > 1 {
		plan.SystemOverloadRisk = 1
	}
	return plan
}
