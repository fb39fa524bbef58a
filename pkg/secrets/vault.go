// Package secrets stores webhook signing secrets. The production store is
// Vault KV v2; StaticStore serves tests and single-node deployments.
package secrets

import (
	"fmt"
	"os"
	"sync"

	vault "github.com/hashicorp/vault/api"
	"github.com/sirupsen/logrus"
)

// Store resolves the HMAC signing secret for a webhook id.
type Store interface {
	GetWebhookSecret(webhookID string) (string, error)
	StoreWebhookSecret(webhookID, secret string) error
	DeleteWebhookSecret(webhookID string) error
}

// VaultStore keeps webhook secrets in Vault under
// secret/data/webhooks/<webhookID>.
type VaultStore struct {
	client *vault.Client
	logger *logrus.Entry
}

// VaultConfig holds Vault connection settings. Empty fields fall back to
// VAULT_ADDR / VAULT_TOKEN.
type VaultConfig struct {
	Address string
	Token   string
}

// NewVaultStore connects to Vault and verifies it is unsealed.
func NewVaultStore(cfg VaultConfig) (*VaultStore, error) {
	if cfg.Address == "" {
		cfg.Address = os.Getenv("VAULT_ADDR")
		if cfg.Address == "" {
			cfg.Address = "http://localhost:8200"
		}
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	health, err := client.Sys().Health()
	if err != nil {
		return nil, fmt.Errorf("vault is not healthy: %w", err)
	}
	if health.Sealed {
		return nil, fmt.Errorf("vault is sealed")
	}

	logger := logrus.WithField("component", "secret-store")
	logger.Infof("connected to Vault at %s", cfg.Address)

	return &VaultStore{client: client, logger: logger}, nil
}

func webhookPath(webhookID string) string {
	return fmt.Sprintf("secret/data/webhooks/%s", webhookID)
}

// GetWebhookSecret reads the signing secret for a webhook.
func (s *VaultStore) GetWebhookSecret(webhookID string) (string, error) {
	secret, err := s.client.Logical().Read(webhookPath(webhookID))
	if err != nil {
		return "", fmt.Errorf("failed to read webhook secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret found for webhook %s", webhookID)
	}
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("invalid secret format for webhook %s", webhookID)
	}
	value, ok := data["secret"].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("empty secret for webhook %s", webhookID)
	}
	return value, nil
}

// StoreWebhookSecret writes the signing secret for a webhook.
func (s *VaultStore) StoreWebhookSecret(webhookID, secret string) error {
	data := map[string]any{
		"data": map[string]any{"secret": secret},
	}
	if _, err := s.client.Logical().Write(webhookPath(webhookID), data); err != nil {
		return fmt.Errorf("failed to store webhook secret: %w", err)
	}
	s.logger.Infof("stored secret for webhook %s", webhookID)
	return nil
}

// DeleteWebhookSecret removes the signing secret for a webhook.
func (s *VaultStore) DeleteWebhookSecret(webhookID string) error {
	path := fmt.Sprintf("secret/metadata/webhooks/%s", webhookID)
	if _, err := s.client.Logical().Delete(path); err != nil {
		return fmt.Errorf("failed to delete webhook secret: %w", err)
	}
	return nil
}

// StaticStore is an in-memory Store for tests and single-node setups.
type StaticStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewStaticStore creates an empty static store.
func NewStaticStore() *StaticStore {
	return &StaticStore{secrets: make(map[string]string)}
}

// GetWebhookSecret returns the stored secret or an error if absent.
func (s *StaticStore) GetWebhookSecret(webhookID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[webhookID]
	if !ok {
		return "", fmt.Errorf("no secret found for webhook %s", webhookID)
	}
	return secret, nil
}

// StoreWebhookSecret stores the secret.
func (s *StaticStore) StoreWebhookSecret(webhookID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[webhookID] = secret
	return nil
}

// DeleteWebhookSecret removes the secret.
func (s *StaticStore) DeleteWebhookSecret(webhookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, webhookID)
	return nil
}
