package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	appEnvVar              = "APP_ENV"
	environmentDevelopment = "development"
	environmentProduction  = "production"
	environmentStaging     = "staging"

	// DefaultConfigPath is used when no path is given.
	DefaultConfigPath = "config/config.yml"
)

const (
	// EnvironmentDevelopment exposes the canonical development environment
	// identifier. It can be used by callers outside the config package when
	// environment specific behaviour is required.
	EnvironmentDevelopment = environmentDevelopment
	// EnvironmentProduction exposes the canonical production environment
	// identifier.
	EnvironmentProduction = environmentProduction
	// EnvironmentStaging exposes the canonical staging environment
	// identifier.
	EnvironmentStaging = environmentStaging
)

var environmentAliases = map[string]string{
	"prod":        environmentProduction,
	"producation": environmentProduction,
	"stag":        environmentStaging,
	"stagging":    environmentStaging,
}

// getAppEnvironment reads the application environment from APP_ENV and
// defaults to development when no value is provided.
func getAppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return environmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// resolveConfigPath selects config.<env>.yml next to path when such a file
// exists for the current environment.
func resolveConfigPath(path string) string {
	if path == "" {
		path = DefaultConfigPath
	}

	ext := filepath.Ext(path)
	envPath := strings.TrimSuffix(path, ext) + "." + getAppEnvironment() + ext
	if info, err := os.Stat(envPath); err == nil && !info.IsDir() {
		return envPath
	}

	return path
}

// AppEnvironment exposes the current application environment as configured
// through the APP_ENV environment variable. The value is normalised using the
// same alias rules that resolve environment specific files so callers can rely
// on a consistent identifier.
func AppEnvironment() string {
	return getAppEnvironment()
}

// IsProductionLike reports whether the provided environment should behave like
// a production deployment. Production-like environments (production and
// staging) refuse to start without an output sink.
func IsProductionLike(env string) bool {
	switch env {
	case environmentProduction, environmentStaging:
		return true
	default:
		return false
	}
}
