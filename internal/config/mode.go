package config

import (
	"os"
	"strings"
)

// DeploymentMode represents where the CLI runs, which decides whether it may
// prompt for credentials
type DeploymentMode string

const (
	// ModeInteractive is a person at a terminal
	ModeInteractive DeploymentMode = "interactive"
	// ModeCI is a pipeline: credentials from the environment only, no prompts
	ModeCI DeploymentMode = "ci"
)

// DetectMode determines the deployment context based on environment
func DetectMode() DeploymentMode {
	if mode := os.Getenv(EnvPrefix + "_MODE"); mode != "" {
		switch strings.ToLower(mode) {
		case "ci", "batch":
			return ModeCI
		case "interactive", "local":
			return ModeInteractive
		}
	}
	if isCI() {
		return ModeCI
	}
	return ModeInteractive
}

// isCI detects if running in a CI/CD environment
func isCI() bool {
	ciEnvVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"BUILDKITE",
		"TF_BUILD",
	}
	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

func (m DeploymentMode) String() string {
	return string(m)
}

// AllowsInteractivePrompts returns true if interactive prompts are allowed
func (m DeploymentMode) AllowsInteractivePrompts() bool {
	return m == ModeInteractive
}

// RequiresStrictValidation turns validation warnings into errors
func (m DeploymentMode) RequiresStrictValidation() bool {
	return m == ModeCI
}
