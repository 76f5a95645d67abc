package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/ogm/internal/errors"
)

// CredentialManager resolves database credentials with the priority chain
// environment, keychain, credentials file, interactive prompt.
type CredentialManager struct {
	mode       DeploymentMode
	keyring    *KeyringManager
	configPath string
	in         io.Reader
	out        io.Writer
}

// Credentials is the layout of the credentials file
type Credentials struct {
	Neo4jPassword string `yaml:"neo4j_password,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
}

// NewCredentialManager creates a new credential manager
func NewCredentialManager(mode DeploymentMode) *CredentialManager {
	homeDir, _ := os.UserHomeDir()
	return &CredentialManager{
		mode:       mode,
		keyring:    NewKeyringManager(),
		configPath: filepath.Join(homeDir, ".config", "ogm", "credentials.yaml"),
		in:         os.Stdin,
		out:        os.Stdout,
	}
}

// Neo4jPassword resolves the Neo4j password
func (cm *CredentialManager) Neo4jPassword() (string, error) {
	if pw := os.Getenv("NEO4J_PASSWORD"); pw != "" {
		return pw, nil
	}

	if cm.keyring.IsAvailable() {
		if pw, err := cm.keyring.GetNeo4jPassword(); err == nil && pw != "" {
			return pw, nil
		}
	}

	if creds, err := cm.loadConfigFile(); err == nil && creds.Neo4jPassword != "" {
		return creds.Neo4jPassword, nil
	}

	if cm.mode.AllowsInteractivePrompts() && isInteractive() {
		pw, err := cm.Prompt("Neo4j password: ")
		if err != nil {
			return "", err
		}
		if pw == "" {
			return "", errors.ConfigErrorf("neo4j password is required")
		}
		if err := cm.SaveCredentials(Credentials{Neo4jPassword: pw}); err != nil {
			fmt.Fprintf(cm.out, "could not store password: %v\n", err)
		}
		return pw, nil
	}

	return "", errors.ConfigErrorf(
		"NEO4J_PASSWORD not found. Set it via:\n"+
			"  1. Environment variable: export NEO4J_PASSWORD=...\n"+
			"  2. Run: ogm login (stores it in the keychain)\n"+
			"  3. Credentials file: %s", cm.configPath)
}

// SaveCredentials saves to the keychain when available, otherwise to the
// credentials file with user-only permissions.
func (cm *CredentialManager) SaveCredentials(creds Credentials) error {
	if cm.keyring.IsAvailable() {
		if creds.Neo4jPassword != "" {
			if err := cm.keyring.SaveNeo4jPassword(creds.Neo4jPassword); err != nil {
				return err
			}
		}
		if creds.RedisPassword != "" {
			if err := cm.keyring.SaveRedisPassword(creds.RedisPassword); err != nil {
				return err
			}
		}
		return nil
	}
	return cm.saveConfigFile(creds)
}

func (cm *CredentialManager) loadConfigFile() (*Credentials, error) {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityMedium, "invalid credentials file")
	}
	return &creds, nil
}

func (cm *CredentialManager) saveConfigFile(creds Credentials) error {
	existing, err := cm.loadConfigFile()
	if err == nil {
		if creds.Neo4jPassword == "" {
			creds.Neo4jPassword = existing.Neo4jPassword
		}
		if creds.RedisPassword == "" {
			creds.RedisPassword = existing.RedisPassword
		}
	}

	if err := os.MkdirAll(filepath.Dir(cm.configPath), 0700); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityMedium, "failed to create credentials directory")
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityMedium, "failed to encode credentials")
	}
	if err := os.WriteFile(cm.configPath, data, 0600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityMedium, "failed to write credentials file")
	}
	return nil
}

// Prompt prints label and reads one line without echo when stdin is a
// terminal.
func (cm *CredentialManager) Prompt(label string) (string, error) {
	fmt.Fprint(cm.out, label)
	if f, ok := cm.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cm.out)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityMedium, "failed to read password")
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(cm.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityMedium, "failed to read password")
	}
	return strings.TrimSpace(line), nil
}

// isInteractive returns true if stdin is a terminal (not piped)
func isInteractive() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// ConfigPath returns the path to the credentials file
func (cm *CredentialManager) ConfigPath() string {
	return cm.configPath
}
