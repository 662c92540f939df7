package config

import "strings"

// Environment identifies the runtime environment of the indexer.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

func normalizeEnvironment(env Environment) Environment {
	trimmed := strings.ToLower(strings.TrimSpace(string(env)))
	switch trimmed {
	case "", "development":
		return EnvDev
	case "production":
		return EnvProd
	default:
		return Environment(trimmed)
	}
}

func normalizeLevel(level string) string {
	trimmed := strings.ToLower(strings.TrimSpace(level))
	if trimmed == "" {
		return "info"
	}
	return trimmed
}
