package trigger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

// FireFunc receives the events that satisfied an event trigger. Debounced
// and batched deliveries carry every coalesced event.
type FireFunc func(workflowID, tenantID string, events []types.Event)

// EventTriggerManager binds workflow event triggers to the bus, applying
// filter, condition, debounce and batch semantics before firing.
type EventTriggerManager struct {
	bus    ports.EventBus
	fire   FireFunc
	logger *logrus.Entry

	mu       sync.Mutex
	bindings map[string]*eventBinding
	stopped  bool
}

type eventBinding struct {
	id          string
	workflowID  string
	tenantID    string
	cfg         types.EventTriggerConfig
	unsubscribe func()

	mu            sync.Mutex
	pending       []types.Event
	debounceTimer *time.Timer
	batchTimer    *time.Timer
}

// NewEventTriggerManager wires the manager to a bus and a fire callback.
func NewEventTriggerManager(bus ports.EventBus, fire FireFunc) *EventTriggerManager {
	return &EventTriggerManager{
		bus:      bus,
		fire:     fire,
		logger:   logrus.WithField("component", "event-trigger-manager"),
		bindings: make(map[string]*eventBinding),
	}
}

// Register subscribes a workflow's event trigger and returns the binding id.
func (m *EventTriggerManager) Register(workflowID, tenantID string, cfg types.EventTriggerConfig) (string, error) {
	if cfg.EventType == "" {
		return "", types.NewValidationError("event trigger requires an event type")
	}

	b := &eventBinding{
		id:         uuid.NewString(),
		workflowID: workflowID,
		tenantID:   tenantID,
		cfg:        cfg,
	}

	unsub, err := m.bus.Subscribe(cfg.EventType, func(evt types.Event) {
		m.handle(b, evt)
	})
	if err != nil {
		return "", fmt.Errorf("subscribe %s: %w", cfg.EventType, err)
	}
	b.unsubscribe = unsub

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		unsub()
		return "", types.NewValidationError("manager is stopped")
	}
	m.bindings[b.id] = b
	m.logger.WithFields(logrus.Fields{
		"workflow": workflowID,
		"event":    cfg.EventType,
	}).Info("event trigger registered")
	return b.id, nil
}

// Unregister removes a binding and drops any coalesced events not yet fired.
func (m *EventTriggerManager) Unregister(id string) {
	m.mu.Lock()
	b, ok := m.bindings[id]
	delete(m.bindings, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	b.unsubscribe()
	b.mu.Lock()
	stopTimer(b.debounceTimer)
	stopTimer(b.batchTimer)
	b.pending = nil
	b.mu.Unlock()
}

// Stop unregisters every binding, flushing pending batches first.
func (m *EventTriggerManager) Stop() {
	m.mu.Lock()
	m.stopped = true
	bindings := make([]*eventBinding, 0, len(m.bindings))
	for _, b := range m.bindings {
		bindings = append(bindings, b)
	}
	m.bindings = make(map[string]*eventBinding)
	m.mu.Unlock()

	for _, b := range bindings {
		b.unsubscribe()
		m.flush(b)
	}
}

func (m *EventTriggerManager) handle(b *eventBinding, evt types.Event) {
	if b.tenantID != "" && evt.TenantID != "" && evt.TenantID != b.tenantID {
		return
	}
	if !matchFilters(evt.Payload, b.cfg.Filters) {
		return
	}
	if !EvaluateConditionSet(evt.Payload, b.cfg.Conditions, types.LogicalAnd) {
		return
	}

	switch {
	case b.cfg.BatchSize > 1:
		m.enqueueBatch(b, evt)
	case b.cfg.DebounceMs > 0:
		m.debounce(b, evt)
	default:
		m.fire(b.workflowID, b.tenantID, []types.Event{evt})
	}
}

// enqueueBatch collects events until the batch fills or the batch timeout
// elapses, whichever comes first.
func (m *EventTriggerManager) enqueueBatch(b *eventBinding, evt types.Event) {
	b.mu.Lock()
	b.pending = append(b.pending, evt)
	full := len(b.pending) >= b.cfg.BatchSize
	if !full && b.batchTimer == nil && b.cfg.BatchTimeoutMs > 0 {
		b.batchTimer = time.AfterFunc(time.Duration(b.cfg.BatchTimeoutMs)*time.Millisecond, func() {
			m.flush(b)
		})
	}
	b.mu.Unlock()

	if full {
		m.flush(b)
	}
}

// debounce coalesces a burst into one delivery carrying every event seen in
// the quiet window.
func (m *EventTriggerManager) debounce(b *eventBinding, evt types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, evt)
	if b.debounceTimer != nil {
		b.debounceTimer.Stop()
	}
	b.debounceTimer = time.AfterFunc(time.Duration(b.cfg.DebounceMs)*time.Millisecond, func() {
		m.flush(b)
	})
}

func (m *EventTriggerManager) flush(b *eventBinding) {
	b.mu.Lock()
	events := b.pending
	b.pending = nil
	stopTimer(b.debounceTimer)
	stopTimer(b.batchTimer)
	b.debounceTimer = nil
	b.batchTimer = nil
	b.mu.Unlock()

	if len(events) > 0 {
		m.fire(b.workflowID, b.tenantID, events)
	}
}

// matchFilters requires exact equality on every filter key present in the
// payload's top level.
func matchFilters(payload, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := payload[k]
		if !ok || !looseEqual(got, want) {
			return false
		}
	}
	return true
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
