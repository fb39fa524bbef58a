package trigger

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/internal/store"
	"github.com/stokcerdas/replenish/pkg/cache"
	"github.com/stokcerdas/replenish/pkg/events"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/secrets"
	"github.com/stokcerdas/replenish/pkg/types"
)

// replayWindow is how long a delivered (webhook, body) pair suppresses
// duplicate deliveries.
const replayWindow = 5 * time.Minute

// WebhookFire receives the decoded payload of a valid webhook delivery.
type WebhookFire func(workflowID, tenantID string, payload map[string]any)

// WebhookManager registers webhook triggers, validates inbound deliveries
// with HMAC-SHA256 over the raw body and suppresses replays.
type WebhookManager struct {
	table   *store.WebhookTable
	secrets secrets.Store
	replays *cache.MemoryCache
	clock   ports.Clock
	fire    WebhookFire
	logger  *logrus.Entry
}

// NewWebhookManager wires the manager. replays should be a shared TTL cache.
func NewWebhookManager(table *store.WebhookTable, secretStore secrets.Store, replays *cache.MemoryCache, clock ports.Clock, fire WebhookFire) *WebhookManager {
	return &WebhookManager{
		table:   table,
		secrets: secretStore,
		replays: replays,
		clock:   clock,
		fire:    fire,
		logger:  logrus.WithField("component", "webhook-manager"),
	}
}

// Register creates a webhook binding and returns its opaque id. When the
// config carries no secret a random one is generated; the signing secret is
// stored in the secret store, never in the table.
func (m *WebhookManager) Register(workflowID, tenantID string, cfg types.WebhookTriggerConfig) (string, error) {
	webhookID := "whk_" + uuid.NewString()

	secret := cfg.Secret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate webhook secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
	}
	if err := m.secrets.StoreWebhookSecret(webhookID, secret); err != nil {
		return "", fmt.Errorf("store webhook secret: %w", err)
	}

	cfg.Secret = ""
	if err := m.table.Insert(&store.WebhookCallback{
		WebhookID:  webhookID,
		WorkflowID: workflowID,
		TenantID:   tenantID,
		Config:     cfg,
	}); err != nil {
		_ = m.secrets.DeleteWebhookSecret(webhookID)
		return "", err
	}

	m.logger.WithFields(logrus.Fields{
		"webhook":  webhookID,
		"workflow": workflowID,
	}).Info("webhook registered")
	return webhookID, nil
}

// BindBus subscribes the manager to the webhook ingress subject, so
// deliveries forwarded by the platform's API layer reach Deliver. Returns the
// unsubscribe function.
func (m *WebhookManager) BindBus(bus ports.EventBus) (func(), error) {
	return bus.Subscribe(events.EventWebhookReceived, func(evt types.Event) {
		webhookID, _ := evt.Payload["webhookId"].(string)
		signature, _ := evt.Payload["signature"].(string)
		body, _ := evt.Payload["body"].(string)
		if err := m.Deliver(webhookID, signature, []byte(body)); err != nil {
			m.logger.WithField("webhook", webhookID).Warnf("forwarded delivery rejected: %v", err)
		}
	})
}

// Unregister removes the binding and its secret.
func (m *WebhookManager) Unregister(webhookID string) {
	m.table.Delete(webhookID)
	if err := m.secrets.DeleteWebhookSecret(webhookID); err != nil {
		m.logger.Warnf("failed to delete secret for webhook %s: %v", webhookID, err)
	}
}

// Sign computes the hex HMAC-SHA256 signature of a body for a webhook.
// Exposed for callers that deliver outbound test pings.
func (m *WebhookManager) Sign(webhookID string, body []byte) (string, error) {
	secret, err := m.secrets.GetWebhookSecret(webhookID)
	if err != nil {
		return "", err
	}
	return signBody(secret, body), nil
}

// Deliver validates an inbound webhook call and fires its workflow.
// Signature mismatches are rejected; replays within the window are accepted
// but not re-fired.
func (m *WebhookManager) Deliver(webhookID, signature string, body []byte) error {
	cb, ok := m.table.Lookup(webhookID)
	if !ok {
		return types.NewValidationError(fmt.Sprintf("unknown webhook %s", webhookID))
	}

	secret, err := m.secrets.GetWebhookSecret(webhookID)
	if err != nil {
		return fmt.Errorf("resolve webhook secret: %w", err)
	}
	expected := signBody(secret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		m.logger.WithField("webhook", webhookID).Warn("webhook signature mismatch")
		return types.NewValidationError("invalid webhook signature")
	}

	// Replay suppression keyed on the body hash.
	sum := sha256.Sum256(body)
	replayKey := fmt.Sprintf("replay:%s:%s", webhookID, hex.EncodeToString(sum[:]))
	if _, seen := m.replays.Get(replayKey); seen {
		m.logger.WithField("webhook", webhookID).Debug("duplicate webhook delivery suppressed")
		return nil
	}
	m.replays.Set(replayKey, m.clock.Now(), replayWindow)

	var payload map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return types.NewValidationError(fmt.Sprintf("invalid webhook body: %v", err))
		}
	}

	m.fire(cb.WorkflowID, cb.TenantID, payload)
	return nil
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
