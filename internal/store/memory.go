// Package store provides in-memory repository implementations and the
// execution audit log. The in-memory repositories back tests and embedded
// deployments; a database-backed implementation plugs into the same ports.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stokcerdas/replenish/pkg/types"
)

// MemoryRuleRepository keeps reorder rules in memory. Writers are serialized
// by a single mutex; copies are returned so callers never share rule state.
type MemoryRuleRepository struct {
	mu    sync.RWMutex
	rules map[string]*types.ReorderRule // id -> rule
}

// NewMemoryRuleRepository creates an empty repository.
func NewMemoryRuleRepository() *MemoryRuleRepository {
	return &MemoryRuleRepository{rules: make(map[string]*types.ReorderRule)}
}

// Get returns the rule by id within a tenant.
func (r *MemoryRuleRepository) Get(ctx context.Context, tenantID, ruleID string) (*types.ReorderRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[ruleID]
	if !ok || rule.TenantID != tenantID || rule.IsDeleted {
		return nil, fmt.Errorf("reorder rule %s not found for tenant %s", ruleID, tenantID)
	}
	cp := *rule
	return &cp, nil
}

// FindByProductLocation resolves the unique rule for a (product, location).
func (r *MemoryRuleRepository) FindByProductLocation(ctx context.Context, tenantID, productID, locationID string) (*types.ReorderRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if rule.TenantID == tenantID && rule.ProductID == productID &&
			rule.LocationID == locationID && !rule.IsDeleted {
			cp := *rule
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no reorder rule for product %s at location %s", productID, locationID)
}

// ListActive returns all active, non-deleted rules of a tenant.
func (r *MemoryRuleRepository) ListActive(ctx context.Context, tenantID string) ([]*types.ReorderRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*types.ReorderRule
	for _, rule := range r.rules {
		if rule.TenantID == tenantID && rule.IsActive && !rule.IsDeleted &&
			rule.Status == types.RuleStatusActive {
			cp := *rule
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListScheduledDue returns SCHEDULED-trigger rules whose review date has
// arrived, across all tenants.
func (r *MemoryRuleRepository) ListScheduledDue(ctx context.Context, now time.Time) ([]*types.ReorderRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*types.ReorderRule
	for _, rule := range r.rules {
		if rule.Trigger != types.TriggerScheduled || rule.IsDeleted {
			continue
		}
		if rule.IsEligibleForExecution(now) && rule.IsDue(now) {
			cp := *rule
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save upserts a rule, enforcing (tenant, product, location) uniqueness.
func (r *MemoryRuleRepository) Save(ctx context.Context, rule *types.ReorderRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.rules {
		if id == rule.ID {
			continue
		}
		if existing.TenantID == rule.TenantID && existing.ProductID == rule.ProductID &&
			existing.LocationID == rule.LocationID && !existing.IsDeleted {
			return types.NewValidationError(fmt.Sprintf(
				"rule for (%s, %s, %s) already exists", rule.TenantID, rule.ProductID, rule.LocationID))
		}
	}
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

// MemoryExecutionRepository keeps the execution audit trail in memory.
type MemoryExecutionRepository struct {
	mu    sync.RWMutex
	execs map[string]*types.ReorderExecution // id -> execution
	order []string                           // insertion order
}

// NewMemoryExecutionRepository creates an empty repository.
func NewMemoryExecutionRepository() *MemoryExecutionRepository {
	return &MemoryExecutionRepository{execs: make(map[string]*types.ReorderExecution)}
}

// Create inserts a new execution row.
func (r *MemoryExecutionRepository) Create(ctx context.Context, exec *types.ReorderExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.execs[exec.ID]; exists {
		return fmt.Errorf("execution %s already exists", exec.ID)
	}
	cp := *exec
	r.execs[exec.ID] = &cp
	r.order = append(r.order, exec.ID)
	return nil
}

// Update overwrites an execution row. Successful rows are immutable.
func (r *MemoryExecutionRepository) Update(ctx context.Context, exec *types.ReorderExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.execs[exec.ID]
	if !ok {
		return fmt.Errorf("execution %s not found", exec.ID)
	}
	if existing.Success {
		return fmt.Errorf("execution %s is finalized and immutable", exec.ID)
	}
	cp := *exec
	r.execs[exec.ID] = &cp
	return nil
}

// Get returns one execution by id.
func (r *MemoryExecutionRepository) Get(ctx context.Context, tenantID, executionID string) (*types.ReorderExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.execs[executionID]
	if !ok || exec.TenantID != tenantID {
		return nil, fmt.Errorf("execution %s not found for tenant %s", executionID, tenantID)
	}
	cp := *exec
	return &cp, nil
}

// ListByRule returns the rule's executions ordered by ExecutedAt descending.
func (r *MemoryExecutionRepository) ListByRule(ctx context.Context, tenantID, ruleID string, limit int) ([]*types.ReorderExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*types.ReorderExecution
	for _, exec := range r.execs {
		if exec.TenantID == tenantID && exec.ReorderRuleID == ruleID {
			cp := *exec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LatestUnfinished returns the newest pending execution for a rule, if any.
func (r *MemoryExecutionRepository) LatestUnfinished(ctx context.Context, tenantID, ruleID string) (*types.ReorderExecution, error) {
	execs, err := r.ListByRule(ctx, tenantID, ruleID, 0)
	if err != nil {
		return nil, err
	}
	for _, exec := range execs {
		if exec.Status == types.ExecutionStatusPending {
			return exec, nil
		}
	}
	return nil, nil
}

// DeleteOlderThan removes executions older than the cutoff and returns the
// number removed.
func (r *MemoryExecutionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	kept := r.order[:0]
	for _, id := range r.order {
		exec := r.execs[id]
		if exec != nil && exec.ExecutedAt.Before(cutoff) {
			delete(r.execs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed, nil
}

// MemoryScheduleRepository keeps automation schedules in memory.
type MemoryScheduleRepository struct {
	mu        sync.RWMutex
	schedules map[string]*types.AutomationSchedule
}

// NewMemoryScheduleRepository creates an empty repository.
func NewMemoryScheduleRepository() *MemoryScheduleRepository {
	return &MemoryScheduleRepository{schedules: make(map[string]*types.AutomationSchedule)}
}

// ListDue returns schedules whose next execution has arrived.
func (r *MemoryScheduleRepository) ListDue(ctx context.Context, now time.Time) ([]*types.AutomationSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*types.AutomationSchedule
	for _, s := range r.schedules {
		if s.ShouldExecute(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListAll returns every schedule.
func (r *MemoryScheduleRepository) ListAll(ctx context.Context) ([]*types.AutomationSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.AutomationSchedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save upserts a schedule.
func (r *MemoryScheduleRepository) Save(ctx context.Context, schedule *types.AutomationSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *schedule
	r.schedules[schedule.ID] = &cp
	return nil
}
