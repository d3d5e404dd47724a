package config

import (
	"os"
	"strings"
)

// DeploymentMode represents the deployment context
type DeploymentMode string

const (
	// ModeDevelopment: running from a checkout, .env and local containers are fine
	ModeDevelopment DeploymentMode = "development"

	// ModePackaged: installed binary, credentials from env vars, keychain or config file
	ModePackaged DeploymentMode = "packaged"

	// ModeCI: credentials from environment variables only, strict validation
	ModeCI DeploymentMode = "ci"
)

// ParseMode maps a mode name or alias to a DeploymentMode
func ParseMode(s string) (DeploymentMode, bool) {
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
	if mode, ok := ParseMode(os.Getenv("CIG_MODE")); ok {
		return mode
	}

	if isCI() {
		return ModeCI
	}

	for _, marker := range []string{".env", "go.mod", "Makefile"} {
		if _, err := os.Stat(marker); err == nil {
			return ModeDevelopment
		}
	}

	return ModePackaged
}

// ModeFor returns the mode set in cfg, falling back to detection
func ModeFor(cfg *Config) DeploymentMode {
	if mode, ok := ParseMode(cfg.Mode); ok {
		return mode
	}
	return DetectMode()
}

// isCI detects if running in a CI/CD environment
func isCI() bool {
	ciEnvVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
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

// Description returns a human-readable description of the mode
func (m DeploymentMode) Description() string {
	switch m {
	case ModeDevelopment:
		return "Local development"
	case ModePackaged:
		return "Packaged installation"
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
