package config

import (
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"

	"github.com/rohankatakam/ogm/internal/errors"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "ogm"

	// KeyringNeo4jPasswordItem holds the Neo4j password
	KeyringNeo4jPasswordItem = "neo4j-password"

	// KeyringRedisPasswordItem holds the redis snapshot store password
	KeyringRedisPasswordItem = "redis-password"
)

// KeyringManager handles secure credential storage in OS keychain:
// Keychain on macOS, Credential Manager on Windows, Secret Service on Linux.
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

// SaveNeo4jPassword stores the Neo4j password in the keychain
func (km *KeyringManager) SaveNeo4jPassword(password string) error {
	return km.save(KeyringNeo4jPasswordItem, password)
}

// GetNeo4jPassword returns the stored Neo4j password, or "" when none is
// stored.
func (km *KeyringManager) GetNeo4jPassword() (string, error) {
	return km.get(KeyringNeo4jPasswordItem)
}

// DeleteNeo4jPassword removes the stored Neo4j password; missing is fine
func (km *KeyringManager) DeleteNeo4jPassword() error {
	return km.delete(KeyringNeo4jPasswordItem)
}

// SaveRedisPassword stores the redis password in the keychain
func (km *KeyringManager) SaveRedisPassword(password string) error {
	return km.save(KeyringRedisPasswordItem, password)
}

// GetRedisPassword returns the stored redis password, or ""
func (km *KeyringManager) GetRedisPassword() (string, error) {
	return km.get(KeyringRedisPasswordItem)
}

func (km *KeyringManager) save(item, secret string) error {
	if secret == "" {
		return errors.ValidationErrorf("%s cannot be empty", item)
	}
	if err := keyring.Set(KeyringService, item, secret); err != nil {
		km.logger.Error("failed to save secret to keychain", "item", item, "error", err)
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityMedium, "failed to save to OS keychain")
	}
	km.logger.Info("secret saved to keychain", "service", KeyringService, "item", item)
	return nil
}

func (km *KeyringManager) get(item string) (string, error) {
	secret, err := keyring.Get(KeyringService, item)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.Debug("keychain read failed", "item", item, "error", err)
		return "", errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityLow, "failed to read from OS keychain")
	}
	return secret, nil
}

func (km *KeyringManager) delete(item string) error {
	err := keyring.Delete(KeyringService, item)
	if err != nil && err != keyring.ErrNotFound {
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityLow, "failed to delete from OS keychain")
	}
	km.logger.Info("secret deleted from keychain", "item", item)
	return nil
}

// IsAvailable checks if OS keychain is available.
// Returns false on headless systems where no secret service is running.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == nil || err == keyring.ErrNotFound {
		return true
	}
	km.logger.Debug("keychain not available", "error", err)
	return false
}

// PasswordSourceInfo describes where the Neo4j password comes from
type PasswordSourceInfo struct {
	Source      string // env, keychain, config, none
	Secure      bool
	Recommended string
}

// PasswordSource reports the origin Load recorded for the Neo4j password
func PasswordSource(cfg *Config) PasswordSourceInfo {
	switch cfg.Neo4j.PasswordSource {
	case SourceEnv:
		return PasswordSourceInfo{Source: SourceEnv, Secure: true, Recommended: "Using NEO4J_PASSWORD"}
	case SourceKeychain:
		return PasswordSourceInfo{Source: SourceKeychain, Secure: true, Recommended: "Stored securely in OS keychain"}
	case SourceConfig:
		return PasswordSourceInfo{Source: SourceConfig, Secure: false, Recommended: "Plaintext password in config file. Run: ogm login"}
	}
	return PasswordSourceInfo{Source: "none", Recommended: "No Neo4j password configured. Run: ogm login"}
}

// MaskSecret masks a secret for display, keeping the first and last two
// characters of long values.
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 8 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", secret[:2], secret[len(secret)-2:])
}
