package config

import (
	"os"
	"strings"
)

// DeploymentMode represents the deployment context
type DeploymentMode string

const (
	// ModeDevelopment is a source checkout talking to a local database.
	// Passwords from .env are acceptable.
	ModeDevelopment DeploymentMode = "development"

	// ModePackaged is an installed binary. Credentials come from env vars,
	// the keychain, the config file or an interactive prompt.
	ModePackaged DeploymentMode = "packaged"

	// ModeCI is a pipeline run: env vars only, no prompts, strict validation.
	ModeCI DeploymentMode = "ci"
)

func parseMode(s string) (DeploymentMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return ModeDevelopment, true
	case "packaged", "pkg", "production", "prod":
		return ModePackaged, true
	case "ci", "cicd":
		return ModeCI, true
	}
	return "", false
}

// DetectMode determines the deployment context based on environment
func DetectMode() DeploymentMode {
	if m, ok := parseMode(os.Getenv("OGM_MODE")); ok {
		return m
	}

	if isCI() {
		return ModeCI
	}

	// Development indicators: a .env file or a module checkout
	for _, marker := range []string{".env", "go.mod", "Makefile"} {
		if _, err := os.Stat(marker); err == nil {
			return ModeDevelopment
		}
	}

	return ModePackaged
}

// isCI detects if running in a CI/CD environment
func isCI() bool {
	ciEnvVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
		"TRAVIS",
		"JENKINS_URL",
		"BUILDKITE",
		"DRONE",
		"TF_BUILD", // Azure Pipelines
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

// String returns the string representation of the mode
func (m DeploymentMode) String() string {
	return string(m)
}

// AllowsDevelopmentDefaults returns true if mode allows .env defaults
func (m DeploymentMode) AllowsDevelopmentDefaults() bool {
	return m == ModeDevelopment
}

// RequiresSecureCredentials returns true if mode requires secure passwords
func (m DeploymentMode) RequiresSecureCredentials() bool {
	return m == ModePackaged || m == ModeCI
}

// AllowsInteractivePrompts returns true if interactive prompts are allowed
func (m DeploymentMode) AllowsInteractivePrompts() bool {
	return m != ModeCI
}

// Description returns a human-readable description of the mode
func (m DeploymentMode) Description() string {
	switch m {
	case ModeDevelopment:
		return "Local development"
	case ModePackaged:
		return "Installed binary"
	case ModeCI:
		return "CI/CD pipeline"
	default:
		return "Unknown mode"
	}
}

// ConfigSource returns where credentials should come from
func (m DeploymentMode) ConfigSource() string {
	switch m {
	case ModeDevelopment:
		return ".env file"
	case ModePackaged:
		return "environment variables, keychain, or config file"
	case ModeCI:
		return "environment variables only"
	default:
		return "unknown"
	}
}
