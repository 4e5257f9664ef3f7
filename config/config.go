package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and cache configuration
//   - http.go: HTTP server configuration
//   - providers.go: Video provider configuration
//   - workflow.go: Worker and workflow tuning
//   - storage.go: Artifact and media paths
//   - observability.go: Metrics and notification fan-out
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, relaxed guards).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Worker pool configuration
	Worker WorkerConfig

	// Workflow tuning
	Workflow WorkflowConfig

	// Video provider configuration
	Providers ProvidersConfig

	// Artifact and media storage
	Artifacts ArtifactConfig
	Media     MediaConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Worker.Sanitize()
	c.Workflow.Sanitize()
	c.Providers.Sanitize()
	c.Observability.Sanitize()
}
