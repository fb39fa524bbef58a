package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/internal/config"
	"github.com/stokcerdas/replenish/internal/executor"
	"github.com/stokcerdas/replenish/pkg/events"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

// Metrics aggregates one tenant processing run. The JSON names are the wire
// surface published on the metrics subject.
type Metrics struct {
	TotalRulesProcessed   int             `json:"totalRulesProcessed"`
	TriggeredRules        int             `json:"triggeredRules"`
	SuccessfulExecutions  int             `json:"successfulExecutions"`
	FailedExecutions      int             `json:"failedExecutions"`
	SkippedRules          int             `json:"skippedRules"`
	AverageProcessingTime float64         `json:"averageProcessingTime"` // ms
	TotalValueGenerated   decimal.Decimal `json:"totalValueGenerated"`
	SystemEfficiency      float64         `json:"systemEfficiency"` // successes / triggered
}

// RunReport is the outcome of one ProcessTenant call.
type RunReport struct {
	TenantID string             `json:"tenantId"`
	Metrics  Metrics            `json:"metrics"`
	Skips    []types.SkipResult `json:"skips,omitempty"`
	Errors   []string           `json:"errors,omitempty"`
	Duration time.Duration      `json:"duration"`
}

// Engine drives rule processing for tenants. At most one run per tenant is
// in flight at a time; overlapping requests are rejected, not queued.
type Engine struct {
	rules    ports.RuleRepository
	executor *executor.Executor
	bus      ports.EventBus
	clock    ports.Clock
	cfg      config.EngineConfig
	logger   *logrus.Entry

	pool *WorkerPool

	// tenant id -> *atomic.Bool processing flag
	processing sync.Map
	activeJobs atomic.Int64
}

// New wires the engine and starts its worker pool.
func New(rules ports.RuleRepository, exec *executor.Executor, bus ports.EventBus, clock ports.Clock, cfg config.EngineConfig) *Engine {
	return &Engine{
		rules:    rules,
		executor: exec,
		bus:      bus,
		clock:    clock,
		cfg:      cfg,
		pool:     NewWorkerPool(cfg.WorkerPoolSize, cfg.WorkerPoolSize*4, cfg.QueueWarnDepth),
		logger:   logrus.WithField("component", "replenishment-engine"),
	}
}

// Stop drains and stops the worker pool.
func (e *Engine) Stop() {
	e.pool.Stop()
}

// ErrTenantBusy is returned when a tenant run is already in flight.
var ErrTenantBusy = types.NewError(types.ErrKindEligibility, "tenant processing already in progress", nil)

// ProcessTenant evaluates and executes every eligible active rule for one
// tenant. Rules run in small concurrent batches with a pause between
// batches.
func (e *Engine) ProcessTenant(ctx context.Context, tenantID string) (*RunReport, error) {
	flag := e.lockFlag(tenantID)
	if !flag.CompareAndSwap(false, true) {
		return nil, ErrTenantBusy
	}
	defer flag.Store(false)

	start := e.clock.Now()
	report := &RunReport{TenantID: tenantID}
	report.Metrics.TotalValueGenerated = decimal.Zero
	log := e.logger.WithField("tenant", tenantID)

	rules, err := e.rules.ListActive(ctx, tenantID)
	if err != nil {
		return nil, types.NewPortError(true, "failed to list active rules", err)
	}
	report.Metrics.TotalRulesProcessed = len(rules)

	now := e.clock.Now()
	var runnable []*types.ReorderRule
	for _, rule := range rules {
		if skip := eligibilitySkip(rule, now); skip != nil {
			report.Skips = append(report.Skips, *skip)
			report.Metrics.SkippedRules++
			continue
		}
		runnable = append(runnable, rule)
	}

	// The plan's order is the execution order: most urgent rules first,
	// stable for the rest of this run.
	plan := e.assemblePlan(tenantID, runnable, now)
	ordered := make([]*types.ReorderRule, 0, len(plan.Rules))
	for _, pr := range plan.Rules {
		ordered = append(ordered, pr.Rule)
	}

	e.runBatches(ctx, tenantID, ordered, report)

	report.Duration = e.clock.Now().Sub(start)
	if n := report.Metrics.SuccessfulExecutions + report.Metrics.FailedExecutions; n > 0 {
		report.Metrics.AverageProcessingTime = float64(report.Duration.Milliseconds()) / float64(n)
	}
	if report.Metrics.TriggeredRules > 0 {
		report.Metrics.SystemEfficiency =
			float64(report.Metrics.SuccessfulExecutions) / float64(report.Metrics.TriggeredRules)
	}

	e.publishMetrics(ctx, tenantID, report)
	log.WithFields(logrus.Fields{
		"rules":      report.Metrics.TotalRulesProcessed,
		"successful": report.Metrics.SuccessfulExecutions,
		"failed":     report.Metrics.FailedExecutions,
		"skipped":    report.Metrics.SkippedRules,
		"duration":   report.Duration,
	}).Info("tenant processing complete")
	return report, nil
}

// ActiveJobs returns the number of rule executions currently in flight
// across all tenants.
func (e *Engine) ActiveJobs() int {
	return int(e.activeJobs.Load())
}

// BuildTenantPlan assembles a prioritized plan from the tenant's eligible
// rules without executing anything.
func (e *Engine) BuildTenantPlan(ctx context.Context, tenantID string) (*Plan, error) {
	rules, err := e.rules.ListActive(ctx, tenantID)
	if err != nil {
		return nil, types.NewPortError(true, "failed to list active rules", err)
	}
	now := e.clock.Now()
	var runnable []*types.ReorderRule
	for _, rule := range rules {
		if eligibilitySkip(rule, now) == nil {
			runnable = append(runnable, rule)
		}
	}
	return e.assemblePlan(tenantID, runnable, now), nil
}

// assemblePlan builds the prioritized plan over already-filtered rules.
func (e *Engine) assemblePlan(tenantID string, runnable []*types.ReorderRule, now time.Time) *Plan {
	var planned []PlannedRule
	remaining := decimal.NewFromInt(-1)
	for _, rule := range runnable {
		planned = append(planned, PlannedRule{
			Rule:      rule,
			Urgency:   rule.LastUrgency,
			Estimated: rule.EstimatedOrderValue(),
			// confidence is unknown before calculation; treat as neutral
			Confidence: 1.0,
		})
		if r := rule.RemainingBudget(now); !r.IsNegative() {
			if remaining.IsNegative() {
				remaining = r
			} else {
				remaining = remaining.Add(r)
			}
		}
	}
	return BuildPlan(tenantID, planned, remaining, e.ActiveJobs())
}

// runBatches executes rules in batches of cfg.BatchSize with up to
// cfg.MaxConcurrentPerTenant in flight, pausing cfg.BatchDelay between
// batches.
func (e *Engine) runBatches(ctx context.Context, tenantID string, rules []*types.ReorderRule, report *RunReport) {
	batchSize := e.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 3
	}
	maxConcurrent := e.cfg.MaxConcurrentPerTenant
	if maxConcurrent <= 0 {
		maxConcurrent = batchSize
	}

	var mu sync.Mutex
	sem := make(chan struct{}, maxConcurrent)

	for start := 0; start < len(rules); start += batchSize {
		if ctx.Err() != nil {
			return
		}
		end := start + batchSize
		if end > len(rules) {
			end = len(rules)
		}

		var wg sync.WaitGroup
		for _, rule := range rules[start:end] {
			rule := rule
			wg.Add(1)
			sem <- struct{}{}
			e.activeJobs.Add(1)
			submitted := e.pool.Submit(func() {
				defer func() {
					e.activeJobs.Add(-1)
					<-sem
					wg.Done()
				}()
				res, err := e.executor.Execute(ctx, executor.Request{
					TenantID: tenantID,
					RuleID:   rule.ID,
				})
				mu.Lock()
				defer mu.Unlock()
				e.tally(report, res, err)
			})
			if !submitted {
				e.activeJobs.Add(-1)
				<-sem
				wg.Done()
				return
			}
		}
		wg.Wait()

		if end < len(rules) && e.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.BatchDelay):
			}
		}
	}
}

// tally folds one execution outcome into the run metrics. Callers hold the
// report lock.
func (e *Engine) tally(report *RunReport, res *executor.Result, err error) {
	if err != nil {
		report.Metrics.FailedExecutions++
		report.Errors = append(report.Errors, err.Error())
		if res != nil && res.Evaluation != nil && res.Evaluation.ShouldTrigger {
			report.Metrics.TriggeredRules++
		}
		return
	}
	if res.Skip != nil {
		report.Metrics.SkippedRules++
		report.Skips = append(report.Skips, *res.Skip)
		if res.Evaluation != nil && res.Evaluation.ShouldTrigger {
			report.Metrics.TriggeredRules++
		}
		return
	}
	if res.Evaluation != nil && res.Evaluation.ShouldTrigger {
		report.Metrics.TriggeredRules++
	}
	if res.Created {
		report.Metrics.SuccessfulExecutions++
		report.Metrics.TotalValueGenerated =
			report.Metrics.TotalValueGenerated.Add(res.PurchaseOrder.TotalAmount)
	}
}

// eligibilitySkip filters a rule before execution, returning the skip reason
// in check order: active state, quarantine, recent errors, pause, due date.
func eligibilitySkip(rule *types.ReorderRule, now time.Time) *types.SkipResult {
	if !rule.IsActive || rule.IsDeleted || rule.Status != types.RuleStatusActive {
		return &types.SkipResult{RuleID: rule.ID, Reason: "rule is not active"}
	}
	if rule.IsQuarantined() {
		return &types.SkipResult{RuleID: rule.ID, Reason: fmt.Sprintf(
			"quarantined after %d consecutive errors", rule.ConsecutiveErrors)}
	}
	if rule.HasRecentErrors(now) {
		return &types.SkipResult{RuleID: rule.ID, Reason: fmt.Sprintf(
			"cooling down after error at %s", rule.LastErrorAt.Format(time.RFC3339))}
	}
	if rule.IsPaused && (rule.PausedUntil == nil || rule.PausedUntil.After(now)) {
		reason := "rule is paused"
		if rule.PauseReason != "" {
			reason = "rule is paused: " + rule.PauseReason
		}
		return &types.SkipResult{RuleID: rule.ID, Reason: reason}
	}
	if !rule.IsDue(now) {
		return &types.SkipResult{RuleID: rule.ID, Reason: fmt.Sprintf(
			"not due until %s", rule.NextReviewDate.Format(time.RFC3339))}
	}
	return nil
}

func (e *Engine) lockFlag(tenantID string) *atomic.Bool {
	v, _ := e.processing.LoadOrStore(tenantID, &atomic.Bool{})
	return v.(*atomic.Bool)
}

func (e *Engine) publishMetrics(ctx context.Context, tenantID string, report *RunReport) {
	_ = e.bus.Publish(ctx, types.Event{
		Name:     events.EventEngineMetrics,
		TenantID: tenantID,
		Payload: map[string]any{
			"totalRulesProcessed":   report.Metrics.TotalRulesProcessed,
			"triggeredRules":        report.Metrics.TriggeredRules,
			"successfulExecutions":  report.Metrics.SuccessfulExecutions,
			"failedExecutions":      report.Metrics.FailedExecutions,
			"skippedRules":          report.Metrics.SkippedRules,
			"averageProcessingTime": report.Metrics.AverageProcessingTime,
			"totalValueGenerated":   report.Metrics.TotalValueGenerated.String(),
			"systemEfficiency":      report.Metrics.SystemEfficiency,
			"durationMs":            report.Duration.Milliseconds(),
		},
		OccurredAt: e.clock.Now(),
	})
}
