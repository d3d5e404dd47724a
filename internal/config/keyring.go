package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "cigraph"

	// KeyringAPIKeyItem holds the embedding provider API key
	KeyringAPIKeyItem = "embedding-api-key"

	// KeyringNeo4jPasswordItem holds the Neo4j mirror password
	KeyringNeo4jPasswordItem = "neo4j-password"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *logrus.Entry
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: logrus.WithField("component", "keyring"),
	}
}

func (km *KeyringManager) save(item, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", item)
	}
	if err := keyring.Set(KeyringService, item, value); err != nil {
		km.logger.WithError(err).WithField("item", item).Error("failed to save to keychain")
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}
	km.logger.WithField("item", item).Info("credential saved to keychain")
	return nil
}

func (km *KeyringManager) get(item string) (string, error) {
	value, err := keyring.Get(KeyringService, item)
	if err == keyring.ErrNotFound {
		// Not an error - just not set yet
		return "", nil
	}
	if err != nil {
		km.logger.WithError(err).WithField("item", item).Error("failed to read from keychain")
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	return value, nil
}

func (km *KeyringManager) remove(item string) error {
	err := keyring.Delete(KeyringService, item)
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}
	return nil
}

// SaveAPIKey stores the embedding API key in the OS keychain
func (km *KeyringManager) SaveAPIKey(apiKey string) error {
	return km.save(KeyringAPIKeyItem, apiKey)
}

// GetAPIKey retrieves the embedding API key; empty when unset
func (km *KeyringManager) GetAPIKey() (string, error) {
	return km.get(KeyringAPIKeyItem)
}

// DeleteAPIKey removes the embedding API key
func (km *KeyringManager) DeleteAPIKey() error {
	return km.remove(KeyringAPIKeyItem)
}

// SaveNeo4jPassword stores the Neo4j password in the OS keychain
func (km *KeyringManager) SaveNeo4jPassword(password string) error {
	return km.save(KeyringNeo4jPasswordItem, password)
}

// GetNeo4jPassword retrieves the Neo4j password; empty when unset
func (km *KeyringManager) GetNeo4jPassword() (string, error) {
	return km.get(KeyringNeo4jPasswordItem)
}

// DeleteNeo4jPassword removes the Neo4j password
func (km *KeyringManager) DeleteNeo4jPassword() error {
	return km.remove(KeyringNeo4jPasswordItem)
}

// IsAvailable checks if OS keychain is available
// Returns false on headless systems (CI/CD) where keychain isn't available
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.WithError(err).Debug("keychain not available")
		return false
	}
	return true
}

// KeySourceInfo returns information about where the API key is stored
type KeySourceInfo struct {
	Source      string // "env", "keychain", "config", "none"
	Secure      bool
	Recommended string
}

// GetAPIKeySource determines where the embedding API key is coming from
func (km *KeyringManager) GetAPIKeySource(cfg *Config) KeySourceInfo {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return KeySourceInfo{
			Source:      "env",
			Secure:      true,
			Recommended: "Using environment variable (good for CI/CD)",
		}
	}

	if keychainKey, _ := km.GetAPIKey(); keychainKey != "" {
		return KeySourceInfo{
			Source:      "keychain",
			Secure:      true,
			Recommended: "Stored securely in OS keychain",
		}
	}

	if cfg.Embedding.APIKey != "" {
		return KeySourceInfo{
			Source:      "config",
			Secure:      false,
			Recommended: "Plaintext storage detected. Move the key to OPENAI_API_KEY or the keychain",
		}
	}

	return KeySourceInfo{
		Source:      "none",
		Secure:      false,
		Recommended: "No API key configured; embeddings are disabled",
	}
}

// MaskAPIKey masks an API key for display
// Shows first 7 chars and last 4 chars: "sk-proj...abc123"
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return "(not set)"
	}
	if len(apiKey) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", apiKey[:7], apiKey[len(apiKey)-4:])
}
