package config

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"

	"github.com/rohankatakam/defectset/internal/logging"
)

// KeyringService is the service name in the OS keychain
const KeyringService = "defectset"

// KeyringManager stores tracker tokens in the OS keychain
type KeyringManager struct {
	logger *logrus.Entry
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager(logger *logrus.Entry) *KeyringManager {
	return &KeyringManager{
		logger: logging.OrDiscard(logger).WithField("component", "keyring"),
	}
}

// tokenItem names the keychain entry of one tracker type
func tokenItem(trackerType string) string {
	return trackerType + "-token"
}

// SetToken stores a tracker token
func (km *KeyringManager) SetToken(trackerType, token string) error {
	if token == "" {
		return fmt.Errorf("%s token cannot be empty", trackerType)
	}
	if err := keyring.Set(KeyringService, tokenItem(trackerType), token); err != nil {
		km.logger.WithError(err).Error("failed to save token to keychain")
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}
	km.logger.WithField("tracker", trackerType).Info("token saved to keychain")
	return nil
}

// GetToken returns the stored token, or "" when none is stored
func (km *KeyringManager) GetToken(trackerType string) (string, error) {
	token, err := keyring.Get(KeyringService, tokenItem(trackerType))
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	km.logger.WithField("tracker", trackerType).Debug("token retrieved from keychain")
	return token, nil
}

// DeleteToken removes a stored token. Deleting a missing token is not an error.
func (km *KeyringManager) DeleteToken(trackerType string) error {
	err := keyring.Delete(KeyringService, tokenItem(trackerType))
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}
	km.logger.WithField("tracker", trackerType).Info("token deleted from keychain")
	return nil
}

// IsAvailable reports whether the OS keychain answers at all. Headless
// systems without a secret service return false.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "availability-check")
	if err == nil || err == keyring.ErrNotFound {
		return true
	}
	km.logger.WithError(err).Debug("keychain not available")
	return false
}

// MaskToken masks a token for display: first 4 and last 4 characters
func MaskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", token[:4], token[len(token)-4:])
}
