package trigger

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/pkg/types"
)

// StateFunc produces the payload snapshot a condition trigger evaluates
// against, typically assembled from live inventory and rule state.
type StateFunc func(ctx context.Context) (map[string]any, error)

// ConditionFire receives the payload that satisfied a condition trigger.
type ConditionFire func(workflowID, tenantID string, payload map[string]any)

// ConditionPoller evaluates registered condition triggers on each tick. By
// default a trigger fires only on the false-to-true edge; persistent
// triggers fire on every true evaluation.
type ConditionPoller struct {
	fire   ConditionFire
	logger *logrus.Entry

	mu       sync.Mutex
	bindings map[string]*conditionBinding
}

type conditionBinding struct {
	id         string
	workflowID string
	tenantID   string
	cfg        types.ConditionTriggerConfig
	state      StateFunc
	lastResult bool
}

// NewConditionPoller creates an empty poller.
func NewConditionPoller(fire ConditionFire) *ConditionPoller {
	return &ConditionPoller{
		fire:     fire,
		logger:   logrus.WithField("component", "condition-poller"),
		bindings: make(map[string]*conditionBinding),
	}
}

// Register adds a condition trigger and returns its binding id.
func (p *ConditionPoller) Register(workflowID, tenantID string, cfg types.ConditionTriggerConfig, state StateFunc) (string, error) {
	if len(cfg.Conditions) == 0 {
		return "", types.NewValidationError("condition trigger requires at least one condition")
	}
	if cfg.LogicalOp == "" {
		cfg.LogicalOp = types.LogicalAnd
	}
	b := &conditionBinding{
		id:         uuid.NewString(),
		workflowID: workflowID,
		tenantID:   tenantID,
		cfg:        cfg,
		state:      state,
	}
	p.mu.Lock()
	p.bindings[b.id] = b
	p.mu.Unlock()
	return b.id, nil
}

// Unregister removes a binding.
func (p *ConditionPoller) Unregister(id string) {
	p.mu.Lock()
	delete(p.bindings, id)
	p.mu.Unlock()
}

// Poll evaluates every binding once. State errors skip the binding without
// disturbing its edge state.
func (p *ConditionPoller) Poll(ctx context.Context) {
	p.mu.Lock()
	bindings := make([]*conditionBinding, 0, len(p.bindings))
	for _, b := range p.bindings {
		bindings = append(bindings, b)
	}
	p.mu.Unlock()

	for _, b := range bindings {
		payload, err := b.state(ctx)
		if err != nil {
			p.logger.WithField("workflow", b.workflowID).Warnf("condition state unavailable: %v", err)
			continue
		}
		result := EvaluateConditionSet(payload, b.cfg.Conditions, b.cfg.LogicalOp)

		shouldFire := result && (b.cfg.Persistent || !b.lastResult)
		b.lastResult = result
		if shouldFire {
			p.fire(b.workflowID, b.tenantID, payload)
		}
	}
}

// Len returns the number of registered condition triggers.
func (p *ConditionPoller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bindings)
}
