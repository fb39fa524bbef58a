package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/internal/calc"
	"github.com/stokcerdas/replenish/internal/config"
	"github.com/stokcerdas/replenish/internal/store"
	"github.com/stokcerdas/replenish/internal/supplier"
	"github.com/stokcerdas/replenish/internal/trigger"
	"github.com/stokcerdas/replenish/pkg/events"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

// stockoutDeadlineDays caps supplier lead time when stockout is close.
const stockoutDeadlineDays = 14

// minSelectionScore is the composite score floor below which no order is
// placed even for a triggered rule.
const minSelectionScore = 50.0

// Request identifies the rule to execute. Either RuleID or the
// (ProductID, LocationID) pair must be set.
type Request struct {
	TenantID   string
	RuleID     string
	ProductID  string
	LocationID string

	Force         bool // execute even when the calculation does not recommend it
	DryRun        bool // full pipeline without PO creation or state mutation
	Actor         string
	TriggerReason string
	IncludeRisk   bool
}

// Result is the outcome of one execution attempt.
type Result struct {
	Execution   *types.ReorderExecution
	Calculation *calc.Result
	Evaluation  *types.TriggerEvaluation
	Selection   *supplier.Result

	PurchaseOrder *types.PurchaseOrder
	Created       bool
	Approved      bool
	Skip          *types.SkipResult
}

// Executor runs the reorder pipeline for one rule at a time.
type Executor struct {
	rules      ports.RuleRepository
	executions ports.ExecutionRepository
	inventory  ports.InventoryPort
	products   ports.ProductPort
	orders     ports.PurchaseOrderPort
	notify     ports.NotificationPort
	bus        ports.EventBus

	calculator *calc.Calculator
	dispatcher *trigger.Dispatcher
	selector   *supplier.Selector
	audit      *store.AuditLog
	ids        ports.IDGenerator
	clock      ports.Clock
	cfg        config.ExecutorConfig
	logger     *logrus.Entry
}

// Deps bundles the executor's collaborators.
type Deps struct {
	Rules      ports.RuleRepository
	Executions ports.ExecutionRepository
	Inventory  ports.InventoryPort
	Products   ports.ProductPort
	Orders     ports.PurchaseOrderPort
	Notify     ports.NotificationPort
	Bus        ports.EventBus
	Calculator *calc.Calculator
	Dispatcher *trigger.Dispatcher
	Selector   *supplier.Selector
	Audit      *store.AuditLog
	IDs        ports.IDGenerator
	Clock      ports.Clock
	Config     config.ExecutorConfig
}

// New wires an executor.
func New(d Deps) *Executor {
	return &Executor{
		rules:      d.Rules,
		executions: d.Executions,
		inventory:  d.Inventory,
		products:   d.Products,
		orders:     d.Orders,
		notify:     d.Notify,
		bus:        d.Bus,
		calculator: d.Calculator,
		dispatcher: d.Dispatcher,
		selector:   d.Selector,
		audit:      d.Audit,
		ids:        d.IDs,
		clock:      d.Clock,
		cfg:        d.Config,
		logger:     logrus.WithField("component", "purchase-executor"),
	}
}

// Execute runs the full pipeline for one rule. Intentional non-execution
// (ineligible, not triggered, budget exhausted) returns a Skip result, not an
// error; errors are reserved for failures that should count against the
// rule's error streak.
func (x *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	start := x.clock.Now()
	res := &Result{}

	rule, err := x.resolveRule(ctx, req)
	if err != nil {
		return nil, err
	}
	log := x.logger.WithFields(logrus.Fields{
		"tenant": rule.TenantID,
		"rule":   rule.ID,
	})

	// Eligibility gates become skips, never errors.
	now := x.clock.Now()
	if skip := x.eligibilitySkip(rule, now, req.Force); skip != nil {
		res.Skip = skip
		log.WithField("reason", skip.Reason).Debug("rule skipped")
		return res, nil
	}

	item, product, err := x.loadReferences(ctx, rule)
	if err != nil {
		x.recordFailure(ctx, rule, nil, err, start, req.DryRun)
		return nil, err
	}

	exec := &types.ReorderExecution{
		ID:            x.ids.NewExecutionID(),
		TenantID:      rule.TenantID,
		ReorderRuleID: rule.ID,
		ExecutedAt:    now,
		Status:        types.ExecutionStatusPending,
		TriggerReason: req.TriggerReason,
	}
	if !req.DryRun {
		if err := x.executions.Create(ctx, exec); err != nil {
			return nil, types.NewPortError(false, "failed to create execution record", err)
		}
	}
	res.Execution = exec

	calcRes := x.calculator.Calculate(ctx, rule, item, product)
	res.Calculation = calcRes
	exec.RecommendedQuantity = calcRes.RecommendedOrderQuantity
	exec.CalculationDetails = snapshot(calcRes, nil)

	if !calcRes.Valid {
		err := types.NewValidationError("calculation invalid: " + firstOr(calcRes.ValidationErrors, "unknown"))
		x.finalizeFailure(ctx, rule, exec, err, start, req.DryRun)
		return res, err
	}

	ev := x.dispatcher.Evaluate(rule, calcRes)
	res.Evaluation = ev
	if ev.Reason != "" && exec.TriggerReason == "" {
		exec.TriggerReason = ev.Reason
	}

	if !ev.ShouldTrigger && !req.Force {
		res.Skip = &types.SkipResult{RuleID: rule.ID, Reason: ev.Reason}
		x.finalizeSkip(ctx, exec, ev.Reason, start, req.DryRun)
		return res, nil
	}

	// Supplier selection.
	selReq := supplier.Request{
		TenantID:              rule.TenantID,
		Product:               product,
		Rule:                  rule,
		OrderQuantity:         calcRes.RecommendedOrderQuantity,
		Urgency:               ev.Urgency,
		IncludeRiskAssessment: req.IncludeRisk,
	}
	if remaining := rule.RemainingBudget(now); !remaining.IsNegative() {
		selReq.Budget = &remaining
	}
	if calcRes.DaysUntilStockout > 0 && calcRes.DaysUntilStockout < stockoutDeadlineDays {
		deadline := now.AddDate(0, 0, int(calcRes.DaysUntilStockout))
		selReq.Deadline = &deadline
	}

	var selection *supplier.Result
	err = withRetry(ctx, func() error {
		var serr error
		selection, serr = x.selector.Select(ctx, selReq)
		return serr
	})
	if err != nil {
		x.finalizeFailure(ctx, rule, exec, err, start, req.DryRun)
		return res, err
	}
	res.Selection = selection
	exec.CalculationDetails = snapshot(calcRes, selection)

	skipReason := x.orderGate(rule, calcRes, selection, now)
	if skipReason != "" {
		res.Skip = &types.SkipResult{RuleID: rule.ID, Reason: skipReason}
		x.finalizeSkip(ctx, exec, skipReason, start, req.DryRun)
		return res, nil
	}

	selected := selection.Selected
	exec.SelectedSupplierID = &selected.Supplier.ID
	exec.TriggeredQuantity = calcRes.RecommendedOrderQuantity

	if req.DryRun {
		exec.ActualQuantity = calcRes.RecommendedOrderQuantity
		exec.OrderValue = selected.EstimatedCost
		exec.Status = types.ExecutionStatusCompleted
		exec.ExecutionTimeMs = x.clock.Now().Sub(start).Milliseconds()
		log.Info("dry run complete; no purchase order created")
		return res, nil
	}

	po, approved, err := x.createOrder(ctx, rule, product, selected, calcRes, ev, req.Actor)
	if err != nil {
		x.finalizeFailure(ctx, rule, exec, err, start, req.DryRun)
		return res, err
	}
	res.PurchaseOrder = po
	res.Created = true
	res.Approved = approved

	exec.PurchaseOrderID = &po.ID
	exec.ActualQuantity = calcRes.RecommendedOrderQuantity
	exec.OrderValue = po.TotalAmount
	exec.Complete()
	exec.ExecutionTimeMs = x.clock.Now().Sub(start).Milliseconds()

	if err := x.executions.Update(ctx, exec); err != nil {
		log.Errorf("failed to finalize execution %s: %v", exec.ID, err)
	}
	x.appendAudit(exec)

	rule.RecordExecution(true, po.TotalAmount, "", x.clock.Now())
	rule.LastUrgency = ev.Urgency
	if err := x.rules.Save(ctx, rule); err != nil {
		log.Errorf("failed to save rule counters: %v", err)
	}

	x.publishExecuted(ctx, rule, exec, po, ev)
	x.notifyResult(ctx, rule, po, ev)

	log.WithFields(logrus.Fields{
		"po":       po.ID,
		"supplier": selected.Supplier.ID,
		"quantity": exec.ActualQuantity,
		"urgency":  ev.Urgency,
	}).Info("reorder executed")
	return res, nil
}

// resolveRule loads the rule by id, or by its unique product and location
// pair.
func (x *Executor) resolveRule(ctx context.Context, req Request) (*types.ReorderRule, error) {
	if req.RuleID != "" {
		rule, err := x.rules.Get(ctx, req.TenantID, req.RuleID)
		if err != nil {
			return nil, types.NewPortError(false, fmt.Sprintf("rule %s not found", req.RuleID), err)
		}
		return rule, nil
	}
	if req.ProductID == "" || req.LocationID == "" {
		return nil, types.NewValidationError("request requires a rule id or product and location")
	}
	rule, err := x.rules.FindByProductLocation(ctx, req.TenantID, req.ProductID, req.LocationID)
	if err != nil {
		return nil, types.NewPortError(false,
			fmt.Sprintf("no rule for product %s at %s", req.ProductID, req.LocationID), err)
	}
	return rule, nil
}

// eligibilitySkip returns a skip for quarantined, ineligible or too-recently
// executed rules. Force bypasses the execution gap but never quarantine.
func (x *Executor) eligibilitySkip(rule *types.ReorderRule, now time.Time, force bool) *types.SkipResult {
	if rule.IsQuarantined() {
		return &types.SkipResult{RuleID: rule.ID, Reason: fmt.Sprintf(
			"quarantined after %d consecutive errors", rule.ConsecutiveErrors)}
	}
	if !rule.IsEligibleForExecution(now) {
		return &types.SkipResult{RuleID: rule.ID, Reason: "rule inactive, paused or deleted"}
	}
	if force {
		return nil
	}
	gap := x.cfg.MinExecutionGap
	if rule.MinIntervalMinutes > 0 {
		gap = time.Duration(rule.MinIntervalMinutes) * time.Minute
	}
	if gap > 0 && rule.LastExecutedAt != nil && now.Sub(*rule.LastExecutedAt) < gap {
		return &types.SkipResult{RuleID: rule.ID, Reason: fmt.Sprintf(
			"executed %s ago, under the %s minimum gap",
			now.Sub(*rule.LastExecutedAt).Round(time.Second), gap)}
	}
	return nil
}

func (x *Executor) loadReferences(ctx context.Context, rule *types.ReorderRule) (*types.InventoryItem, *types.Product, error) {
	var item *types.InventoryItem
	err := withRetry(ctx, func() error {
		var ierr error
		item, ierr = x.inventory.GetItem(ctx, rule.TenantID, rule.ProductID, rule.LocationID)
		return ierr
	})
	if err != nil {
		return nil, nil, types.NewPortError(false, "inventory item unavailable", err)
	}

	var product *types.Product
	err = withRetry(ctx, func() error {
		var perr error
		product, perr = x.products.GetProduct(ctx, rule.TenantID, rule.ProductID)
		return perr
	})
	if err != nil {
		return nil, nil, types.NewPortError(false, "product unavailable", err)
	}
	return item, product, nil
}

// orderGate decides whether a triggered rule actually produces an order.
// Empty return means proceed.
func (x *Executor) orderGate(rule *types.ReorderRule, calcRes *calc.Result, selection *supplier.Result, now time.Time) string {
	if calcRes.RecommendedOrderQuantity <= 0 {
		return "recommended order quantity is zero"
	}
	if !selection.Success || selection.Selected == nil {
		return "no supplier available: " + selection.Reason
	}
	if selection.Selected.TotalScore < minSelectionScore {
		return fmt.Sprintf("best supplier score %.1f below minimum %.0f",
			selection.Selected.TotalScore, minSelectionScore)
	}
	remaining := rule.RemainingBudget(now)
	if !remaining.IsNegative() && selection.Selected.EstimatedCost.GreaterThan(remaining) {
		return fmt.Sprintf("Insufficient remaining budget: order value %s exceeds remaining %s",
			selection.Selected.EstimatedCost.StringFixed(2), remaining.StringFixed(2))
	}
	return ""
}

// createOrder drafts the PO and auto-approves it when the rule allows.
func (x *Executor) createOrder(ctx context.Context, rule *types.ReorderRule, product *types.Product, selected *supplier.ScoredSupplier, calcRes *calc.Result, ev *types.TriggerEvaluation, actor string) (*types.PurchaseOrder, bool, error) {
	now := x.clock.Now()
	priority := types.PriorityNormal
	if ev.Urgency >= 8 {
		priority = types.PriorityUrgent
	}
	expected := now.AddDate(0, 0, selected.Supplier.LeadTimeDays)

	dto := &types.PurchaseOrderDto{
		SupplierID:  selected.Supplier.ID,
		Type:        "standard",
		Priority:    priority,
		Description: fmt.Sprintf("Automated reorder for %s (%s)", product.Name, product.SKU),
		InternalNotes: fmt.Sprintf("rule=%s trigger=%s urgency=%d score=%.1f",
			rule.ID, rule.Trigger, ev.Urgency, selected.TotalScore),
		Items: []types.PurchaseOrderItem{{
			ProductID:       product.ID,
			SKU:             product.SKU,
			ProductName:     product.Name,
			OrderedQuantity: calcRes.RecommendedOrderQuantity,
			UnitPrice:       selected.FinalUnitCost,
		}},
		ExpectedDeliveryDate:  expected.UTC().Format(time.RFC3339),
		RequestedDeliveryDate: expected.UTC().Format(time.RFC3339),
		PaymentTerms:          selected.Supplier.PaymentTerms,
	}

	var po *types.PurchaseOrder
	rctx, cancel := context.WithTimeout(ctx, x.cfg.RPCTimeout)
	defer cancel()
	err := withRetry(rctx, func() error {
		var cerr error
		po, cerr = x.orders.Create(rctx, rule.TenantID, dto, actor)
		return cerr
	})
	if err != nil {
		return nil, false, types.NewPortError(types.IsTransient(err), "purchase order creation failed", err)
	}

	x.publishOrderCreated(ctx, rule, po, ev)

	approved := false
	if x.shouldAutoApprove(rule, po) {
		err := withRetry(ctx, func() error {
			return x.orders.Approve(ctx, rule.TenantID, po.ID,
				ports.ApprovalRequest{Comments: "Auto-approved by replenishment engine"}, actor)
		})
		if err != nil {
			// The PO exists; approval failure downgrades to manual review.
			x.logger.Warnf("auto-approval failed for PO %s: %v", po.ID, err)
		} else {
			approved = true
			po.Approved = true
			x.publishOrderApproved(ctx, rule, po)
		}
	}
	return po, approved, nil
}

// shouldAutoApprove requires full automation and the order value under the
// approval threshold.
func (x *Executor) shouldAutoApprove(rule *types.ReorderRule, po *types.PurchaseOrder) bool {
	if !rule.IsFullyAutomated || rule.RequiresApproval {
		return false
	}
	if rule.AutoApprovalThreshold.IsPositive() {
		return po.TotalAmount.LessThanOrEqual(rule.AutoApprovalThreshold)
	}
	return true
}

func (x *Executor) finalizeSkip(ctx context.Context, exec *types.ReorderExecution, reason string, start time.Time, dryRun bool) {
	exec.Skip(reason)
	exec.ExecutionTimeMs = x.clock.Now().Sub(start).Milliseconds()
	if dryRun {
		return
	}
	if err := x.executions.Update(ctx, exec); err != nil {
		x.logger.Errorf("failed to finalize skipped execution %s: %v", exec.ID, err)
	}
	x.appendAudit(exec)
}

func (x *Executor) finalizeFailure(ctx context.Context, rule *types.ReorderRule, exec *types.ReorderExecution, cause error, start time.Time, dryRun bool) {
	exec.Fail(cause.Error())
	exec.ExecutionTimeMs = x.clock.Now().Sub(start).Milliseconds()
	if dryRun {
		return
	}
	if err := x.executions.Update(ctx, exec); err != nil {
		x.logger.Errorf("failed to finalize failed execution %s: %v", exec.ID, err)
	}
	x.appendAudit(exec)
	x.recordFailure(ctx, rule, exec, cause, start, dryRun)
}

// recordFailure grows the rule's error streak and alerts when it crosses the
// quarantine cap.
func (x *Executor) recordFailure(ctx context.Context, rule *types.ReorderRule, exec *types.ReorderExecution, cause error, start time.Time, dryRun bool) {
	if dryRun {
		return
	}
	now := x.clock.Now()
	rule.RecordExecution(false, decimal.Zero, cause.Error(), now)
	if err := x.rules.Save(ctx, rule); err != nil {
		x.logger.Errorf("failed to save rule error state: %v", err)
	}

	if rule.IsQuarantined() {
		nctx, cancel := context.WithTimeout(ctx, x.cfg.NotificationTimeout)
		defer cancel()
		_ = x.notify.CreateAlert(nctx, rule.TenantID, ports.Alert{
			Type:     "reorder_rule_quarantined",
			Severity: ports.SeverityCritical,
			Title:    "Reorder rule quarantined",
			Message: fmt.Sprintf("Rule %s disabled after %d consecutive errors: %v",
				rule.Name, rule.ConsecutiveErrors, cause),
			ProductID:  rule.ProductID,
			LocationID: rule.LocationID,
		})
	}
}

func (x *Executor) appendAudit(exec *types.ReorderExecution) {
	if x.audit == nil {
		return
	}
	if err := x.audit.Append(exec); err != nil {
		x.logger.Warnf("audit append failed for %s: %v", exec.ID, err)
	}
}

func (x *Executor) publishOrderCreated(ctx context.Context, rule *types.ReorderRule, po *types.PurchaseOrder, ev *types.TriggerEvaluation) {
	_ = x.bus.Publish(ctx, types.Event{
		Name:     events.EventPurchaseOrderCreated,
		TenantID: rule.TenantID,
		Payload: map[string]any{
			"purchaseOrderId": po.ID,
			"orderNumber":     po.OrderNumber,
			"supplierId":      po.SupplierID,
			"ruleId":          rule.ID,
			"productId":       rule.ProductID,
			"totalAmount":     po.TotalAmount.String(),
			"urgency":         ev.Urgency,
		},
		OccurredAt: x.clock.Now(),
	})
}

func (x *Executor) publishOrderApproved(ctx context.Context, rule *types.ReorderRule, po *types.PurchaseOrder) {
	_ = x.bus.Publish(ctx, types.Event{
		Name:     events.EventPurchaseOrderApproved,
		TenantID: rule.TenantID,
		Payload: map[string]any{
			"purchaseOrderId": po.ID,
			"orderNumber":     po.OrderNumber,
			"ruleId":          rule.ID,
			"totalAmount":     po.TotalAmount.String(),
		},
		OccurredAt: x.clock.Now(),
	})
}

func (x *Executor) publishExecuted(ctx context.Context, rule *types.ReorderRule, exec *types.ReorderExecution, po *types.PurchaseOrder, ev *types.TriggerEvaluation) {
	_ = x.bus.Publish(ctx, types.Event{
		Name:     events.EventReorderExecuted,
		TenantID: rule.TenantID,
		Payload: map[string]any{
			"executionId":     exec.ID,
			"ruleId":          rule.ID,
			"productId":       rule.ProductID,
			"locationId":      rule.LocationID,
			"purchaseOrderId": po.ID,
			"quantity":        exec.ActualQuantity,
			"orderValue":      exec.OrderValue.String(),
			"urgency":         ev.Urgency,
			"reason":          exec.TriggerReason,
		},
		OccurredAt: x.clock.Now(),
	})
}

// notifyResult alerts operators; urgency 8+ escalates to critical.
func (x *Executor) notifyResult(ctx context.Context, rule *types.ReorderRule, po *types.PurchaseOrder, ev *types.TriggerEvaluation) {
	severity := ports.SeverityInfo
	if ev.Urgency >= 8 {
		severity = ports.SeverityCritical
	}
	nctx, cancel := context.WithTimeout(ctx, x.cfg.NotificationTimeout)
	defer cancel()
	_ = x.notify.CreateAlert(nctx, rule.TenantID, ports.Alert{
		Type:     "reorder_executed",
		Severity: severity,
		Title:    "Automated reorder placed",
		Message: fmt.Sprintf("PO %s for %s (value %s, urgency %d)",
			po.OrderNumber, rule.Name, po.TotalAmount.StringFixed(2), ev.Urgency),
		Metadata: map[string]any{
			"purchaseOrderId": po.ID,
			"ruleId":          rule.ID,
		},
		ProductID:  rule.ProductID,
		LocationID: rule.LocationID,
	})
	if severity == ports.SeverityCritical {
		_ = x.bus.Publish(ctx, types.Event{
			Name:     events.EventSystemAlert,
			TenantID: rule.TenantID,
			Payload: map[string]any{
				"type":            "reorder_executed",
				"purchaseOrderId": po.ID,
				"ruleId":          rule.ID,
				"urgency":         ev.Urgency,
			},
			OccurredAt: x.clock.Now(),
		})
	}
}

// snapshot builds the persisted calculation details, merging supplier scores
// when selection has run.
func snapshot(res *calc.Result, selection *supplier.Result) *types.CalculationDetails {
	d := &types.CalculationDetails{
		CurrentStock:   res.CurrentStock,
		ReorderPoint:   res.RecommendedReorderPoint,
		LeadTimeDemand: res.LeadTimeDemand,
		SafetyStock:    res.SafetyStock,
		ForecastDemand: res.ForecastDemand,
		SupplierScores: map[string]float64{},
	}
	if res.SeasonalFactor != 1.0 {
		sf := res.SeasonalFactor
		d.SeasonalFactor = &sf
	}
	if res.EOQ != nil {
		eoq := res.EOQ.EOQ
		d.EOQCalculation = &eoq
	}
	if selection != nil {
		d.SupplierScores = selection.SupplierScores
	}
	return d
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}
