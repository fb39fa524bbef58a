package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/internal/calc"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

// Dispatcher reduces every rule trigger variant to a uniform evaluation.
type Dispatcher struct {
	clock        ports.Clock
	restrictions *Restrictions
	logger       *logrus.Entry
}

// NewDispatcher wires the dispatcher. restrictions may be nil to disable
// execution windows.
func NewDispatcher(clock ports.Clock, restrictions *Restrictions) *Dispatcher {
	return &Dispatcher{
		clock:        clock,
		restrictions: restrictions,
		logger:       logrus.WithField("component", "trigger-dispatcher"),
	}
}

// Evaluate decides whether the rule should fire given a completed
// calculation. The calculation result carries the stock, reorder point and
// forecast state every variant reads.
func (d *Dispatcher) Evaluate(rule *types.ReorderRule, res *calc.Result) *types.TriggerEvaluation {
	now := d.clock.Now()

	ev := &types.TriggerEvaluation{Confidence: res.Confidence}
	if !res.Valid {
		ev.Reason = "calculation invalid: " + strings.Join(res.ValidationErrors, "; ")
		return ev
	}

	switch rule.Trigger {
	case types.TriggerStockLevel:
		d.evaluateStockLevel(rule, res, ev)
	case types.TriggerDaysOfSupply:
		d.evaluateDaysOfSupply(rule, res, ev)
	case types.TriggerScheduled:
		d.evaluateScheduled(rule, now, ev)
		ev.Urgency = res.UrgencyScore
	case types.TriggerDemandForecast:
		d.evaluateForecast(rule, res, ev)
	case types.TriggerCombined:
		d.evaluateCombined(rule, res, now, ev)
	default:
		ev.Reason = fmt.Sprintf("unknown trigger %q", rule.Trigger)
		return ev
	}

	ev.EstimatedValue = res.EstimatedValue
	ev.Warnings = append(ev.Warnings, res.Warnings...)

	if ev.ShouldTrigger && d.restrictions != nil {
		ev.Blockers = d.restrictions.Blockers(now, rule.Location(), ev.Urgency)
		if ev.Blocked() {
			ev.ShouldTrigger = false
			ev.Reason = ev.Reason + " (blocked: " + strings.Join(ev.Blockers, "; ") + ")"
		}
	}
	return ev
}

// evaluateStockLevel fires once available stock falls to the reorder point,
// with urgency tiers below it.
func (d *Dispatcher) evaluateStockLevel(rule *types.ReorderRule, res *calc.Result, ev *types.TriggerEvaluation) {
	stock := res.CurrentStock
	rp := res.RecommendedReorderPoint
	if rp <= 0 {
		rp = rule.ReorderPoint
	}

	switch {
	case stock <= 0:
		ev.ShouldTrigger = true
		ev.Urgency = 10
		ev.Reason = "stock depleted"
	case rp > 0 && stock <= rp/4:
		ev.ShouldTrigger = true
		ev.Urgency = 9
		ev.Reason = fmt.Sprintf("stock %d at or below 25%% of reorder point %d", stock, rp)
	case rp > 0 && stock <= rp/2:
		ev.ShouldTrigger = true
		ev.Urgency = 7
		ev.Reason = fmt.Sprintf("stock %d at or below 50%% of reorder point %d", stock, rp)
	case rp > 0 && stock <= rp:
		ev.ShouldTrigger = true
		ev.Urgency = 5
		ev.Reason = fmt.Sprintf("stock %d at or below reorder point %d", stock, rp)
	case rp > 0 && float64(stock) <= float64(rp)*1.1:
		ev.Urgency = 3
		ev.Reason = fmt.Sprintf("stock %d approaching reorder point %d", stock, rp)
		ev.Warnings = append(ev.Warnings, "stock within 10% of reorder point")
	default:
		ev.Urgency = 1
		ev.Reason = fmt.Sprintf("stock %d above reorder point %d", stock, rp)
	}
}

// evaluateDaysOfSupply fires when coverage drops to the safety stock window;
// coverage inside lead time raises urgency to the expedite floor.
func (d *Dispatcher) evaluateDaysOfSupply(rule *types.ReorderRule, res *calc.Result, ev *types.TriggerEvaluation) {
	dos := res.DaysOfSupply
	threshold := float64(rule.SafetyStockDays + rule.LeadTimeDays)
	if threshold <= 0 {
		threshold = float64(rule.LeadTimeDays)
	}

	if dos <= threshold {
		ev.ShouldTrigger = true
		ev.Urgency = res.UrgencyScore
		if rule.LeadTimeDays > 0 && dos <= float64(rule.LeadTimeDays) && ev.Urgency < 8 {
			ev.Urgency = 8
		}
		ev.Reason = fmt.Sprintf("%.1f days of supply at or below %.0f day threshold", dos, threshold)
		return
	}
	ev.Urgency = res.UrgencyScore
	ev.Reason = fmt.Sprintf("%.1f days of supply above %.0f day threshold", dos, threshold)
}

// evaluateScheduled fires when the rule's cron schedule has come due since
// the last execution.
func (d *Dispatcher) evaluateScheduled(rule *types.ReorderRule, now time.Time, ev *types.TriggerEvaluation) {
	if rule.CronSchedule == "" {
		if rule.IsDue(now) {
			ev.ShouldTrigger = true
			ev.Reason = "review date reached"
		} else {
			ev.Reason = "not yet due for review"
			ev.NextEvaluationTime = rule.NextReviewDate
		}
		return
	}

	sched, err := cron.ParseStandard(rule.CronSchedule)
	if err != nil {
		ev.Reason = fmt.Sprintf("invalid cron schedule %q: %v", rule.CronSchedule, err)
		ev.Warnings = append(ev.Warnings, ev.Reason)
		return
	}

	loc := rule.Location()
	anchor := now.Add(-24 * time.Hour)
	if rule.LastExecutedAt != nil {
		anchor = *rule.LastExecutedAt
	}
	due := sched.Next(anchor.In(loc))
	next := sched.Next(now.In(loc))
	ev.NextEvaluationTime = &next

	if !due.After(now.In(loc)) {
		ev.ShouldTrigger = true
		ev.Reason = fmt.Sprintf("schedule %q due at %s", rule.CronSchedule, due.Format(time.RFC3339))
		return
	}
	ev.Reason = fmt.Sprintf("schedule %q next due at %s", rule.CronSchedule, due.Format(time.RFC3339))
}

// evaluateForecast fires when stock falls to the forecast demand weighted by
// the rule's confidence threshold. Without a usable forecast it degrades to
// stock-level logic.
func (d *Dispatcher) evaluateForecast(rule *types.ReorderRule, res *calc.Result, ev *types.TriggerEvaluation) {
	if res.ForecastDemand == nil {
		ev.Warnings = append(ev.Warnings, "forecast unavailable; falling back to stock-level logic")
		d.evaluateStockLevel(rule, res, ev)
		return
	}

	threshold := rule.ForecastConfidenceThreshold
	if threshold <= 0 {
		threshold = 1.0
	}
	weighted := *res.ForecastDemand * threshold
	if float64(res.CurrentStock) <= weighted {
		ev.ShouldTrigger = true
		ev.Urgency = res.UrgencyScore
		if ev.Urgency < 5 {
			ev.Urgency = 5
		}
		ev.Confidence = res.ForecastConfidence
		ev.Reason = fmt.Sprintf("stock %d at or below confidence-weighted forecast demand %.0f",
			res.CurrentStock, weighted)
		return
	}
	ev.Urgency = res.UrgencyScore
	ev.Confidence = res.ForecastConfidence
	ev.Reason = fmt.Sprintf("stock %d above confidence-weighted forecast demand %.0f",
		res.CurrentStock, weighted)
}

// evaluateCombined fires when any sub-trigger fires, taking the highest
// urgency and concatenating the firing reasons. The scheduled sub-trigger
// participates only when the rule carries a cron expression; its due-date
// fallback would otherwise fire on every pass.
func (d *Dispatcher) evaluateCombined(rule *types.ReorderRule, res *calc.Result, now time.Time, ev *types.TriggerEvaluation) {
	stock := &types.TriggerEvaluation{}
	d.evaluateStockLevel(rule, res, stock)
	dos := &types.TriggerEvaluation{}
	d.evaluateDaysOfSupply(rule, res, dos)
	fc := &types.TriggerEvaluation{}
	d.evaluateForecast(rule, res, fc)

	subs := []*types.TriggerEvaluation{stock, dos, fc}
	if rule.CronSchedule != "" {
		sc := &types.TriggerEvaluation{}
		d.evaluateScheduled(rule, now, sc)
		ev.NextEvaluationTime = sc.NextEvaluationTime
		subs = append(subs, sc)
	}

	var reasons []string
	for _, sub := range subs {
		if sub.ShouldTrigger {
			ev.ShouldTrigger = true
			reasons = append(reasons, sub.Reason)
		}
		if sub.Urgency > ev.Urgency {
			ev.Urgency = sub.Urgency
		}
		ev.Warnings = append(ev.Warnings, sub.Warnings...)
	}
	if ev.ShouldTrigger {
		ev.Reason = strings.Join(reasons, "; ")
		return
	}
	ev.Reason = "no combined condition met: " + stock.Reason
}
