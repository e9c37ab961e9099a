package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/defectset/internal/errors"
)

// CredentialManager resolves the tracker token with a priority chain:
// configuration/environment → keychain → credentials file → interactive prompt
type CredentialManager struct {
	mode       DeploymentMode
	keyring    *KeyringManager
	configPath string
	in         *os.File
	out        io.Writer
}

// Credentials is the on-disk credentials file
type Credentials struct {
	Tokens map[string]string `yaml:"tokens"`
}

// NewCredentialManager creates a credential manager for the current environment
func NewCredentialManager(logger *logrus.Entry) *CredentialManager {
	homeDir, _ := os.UserHomeDir()
	return &CredentialManager{
		mode:       DetectMode(),
		keyring:    NewKeyringManager(logger),
		configPath: filepath.Join(homeDir, ".config", "defectset", "credentials.yaml"),
		in:         os.Stdin,
		out:        os.Stderr,
	}
}

// TrackerToken returns the token for cfg's tracker. Both trackers can read
// public projects anonymously, so a missing token is not an error.
func (cm *CredentialManager) TrackerToken(cfg TrackerConfig) (string, error) {
	if cfg.Token != "" {
		return cfg.Token, nil
	}

	if cm.keyring.IsAvailable() {
		if token, err := cm.keyring.GetToken(cfg.Type); err == nil && token != "" {
			return token, nil
		}
	}

	if creds, err := cm.loadConfigFile(); err == nil {
		if token := creds.Tokens[cfg.Type]; token != "" {
			return token, nil
		}
	}

	if cm.mode.AllowsInteractivePrompts() && cm.isInteractive() {
		fmt.Fprintf(cm.out, "%s token not found (optional, raises rate limits).\n", cfg.Type)
		fmt.Fprintf(cm.out, "Enter %s token (or press Enter to skip): ", cfg.Type)
		token, err := cm.readSecurely()
		if err != nil {
			return "", errors.ConfigErrorf("read token: %v", err)
		}
		if token != "" {
			if err := cm.SaveToken(cfg.Type, token); err != nil {
				return "", err
			}
		}
		return token, nil
	}
	return "", nil
}

// SaveToken stores a token in the keychain, or the credentials file when
// no keychain is available
func (cm *CredentialManager) SaveToken(trackerType, token string) error {
	if cm.keyring.IsAvailable() {
		if err := cm.keyring.SetToken(trackerType, token); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh,
				"failed to save token to keychain")
		}
		return nil
	}

	creds, err := cm.loadConfigFile()
	if err != nil {
		creds = &Credentials{}
	}
	if creds.Tokens == nil {
		creds.Tokens = make(map[string]string)
	}
	creds.Tokens[trackerType] = token
	return cm.saveConfigFile(creds)
}

func (cm *CredentialManager) loadConfigFile() (*Credentials, error) {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return nil, err
	}
	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

func (cm *CredentialManager) saveConfigFile(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(cm.configPath), 0700); err != nil {
		return errors.FileSystemErrorf(err, "create credentials directory")
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return errors.InternalErrorf("marshal credentials: %v", err)
	}
	// user-only read/write
	if err := os.WriteFile(cm.configPath, data, 0600); err != nil {
		return errors.FileSystemErrorf(err, "write %s", cm.configPath)
	}
	return nil
}

// readSecurely reads a token without echoing when stdin is a terminal
func (cm *CredentialManager) readSecurely() (string, error) {
	if term.IsTerminal(int(cm.in.Fd())) {
		b, err := term.ReadPassword(int(cm.in.Fd()))
		fmt.Fprintln(cm.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(cm.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (cm *CredentialManager) isInteractive() bool {
	return cm.in != nil && term.IsTerminal(int(cm.in.Fd()))
}

// ConfigPath returns the path of the credentials file
func (cm *CredentialManager) ConfigPath() string {
	return cm.configPath
}

// Mode returns the detected deployment mode
func (cm *CredentialManager) Mode() DeploymentMode {
	return cm.mode
}
