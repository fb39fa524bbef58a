package store

import (
	"fmt"
	"sync"

	"github.com/stokcerdas/replenish/pkg/types"
)

// WebhookCallback binds an opaque webhook id to its trigger configuration.
type WebhookCallback struct {
	WebhookID  string
	WorkflowID string
	TenantID   string
	Config     types.WebhookTriggerConfig
}

// WebhookTable is the callback registry for inbound webhooks. Inserts and
// deletes are serialized; lookups are concurrent.
type WebhookTable struct {
	mu        sync.RWMutex
	callbacks map[string]*WebhookCallback
}

// NewWebhookTable creates an empty table.
func NewWebhookTable() *WebhookTable {
	return &WebhookTable{callbacks: make(map[string]*WebhookCallback)}
}

// Insert registers a callback under its webhook id.
func (t *WebhookTable) Insert(cb *WebhookCallback) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.callbacks[cb.WebhookID]; exists {
		return fmt.Errorf("webhook %s already registered", cb.WebhookID)
	}
	t.callbacks[cb.WebhookID] = cb
	return nil
}

// Lookup returns the callback for a webhook id.
func (t *WebhookTable) Lookup(webhookID string) (*WebhookCallback, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cb, ok := t.callbacks[webhookID]
	return cb, ok
}

// Delete removes a callback.
func (t *WebhookTable) Delete(webhookID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.callbacks, webhookID)
}

// Len returns the number of registered callbacks.
func (t *WebhookTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.callbacks)
}
