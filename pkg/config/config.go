package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for insight-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, tokens) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Catalog is the metadata catalog server the engine reports to.
	Catalog CatalogConfig `yaml:"catalog"`

	// Elasticsearch configuration for the default report-row sink.
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`

	// Database configuration for the Postgres report-row sink.
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration for the index-recreate lock.
	Redis RedisConfig `yaml:"redis"`

	// Secrets configuration selects the secret-resolution provider.
	Secrets SecretsConfig `yaml:"secrets"`

	// Scheduler configuration for periodic workflow runs.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// WorkflowConfigPath points at the pipeline definition
	// (source/processor/sink) executed by the scheduler.
	WorkflowConfigPath string `yaml:"workflow_config_path" env:"WORKFLOW_CONFIG_PATH" env-default:"workflow.yaml"`
}

// CatalogConfig holds the metadata catalog server connection settings.
type CatalogConfig struct {
	HostPort     string `yaml:"host_port" env:"CATALOG_HOST_PORT" env-default:"http://localhost:8585/api"`
	AuthProvider string `yaml:"auth_provider" env:"CATALOG_AUTH_PROVIDER" env-default:"openmetadata"`
	JWTToken     string `yaml:"-" env:"CATALOG_JWT_TOKEN"` // Secret - not in YAML
}

// ElasticsearchConfig holds Elasticsearch sink settings.
type ElasticsearchConfig struct {
	Host     string `yaml:"host" env:"ES_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"ES_PORT" env-default:"9200"`
	Scheme   string `yaml:"scheme" env:"ES_SCHEME" env-default:"http"`
	User     string `yaml:"user" env:"ES_USER" env-default:""`
	Password string `yaml:"-" env:"ES_PASSWORD"` // Secret - not in YAML
}

// Address returns the Elasticsearch node URL.
func (c *ElasticsearchConfig) Address() string {
	return fmt.Sprintf("%s://%s:%d", c.Scheme, c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL configuration for the relational sink.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"insight"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"insight_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PG_MIGRATIONS_PATH" env-default:"migrations"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis connection settings.
// Redis is optional; when Host is empty the engine falls back to a
// process-local lock for index recreation.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// SecretsConfig selects and configures the secret-resolution provider.
type SecretsConfig struct {
	// Provider is "env" or "aws".
	Provider string `yaml:"provider" env:"SECRETS_PROVIDER" env-default:"env"`
	// ClusterPrefix namespaces secret ids, e.g. /insight/<name>.
	ClusterPrefix string `yaml:"cluster_prefix" env:"SECRETS_CLUSTER_PREFIX" env-default:"insight"`
	// Region is the AWS region for the aws provider.
	Region string `yaml:"region" env:"SECRETS_AWS_REGION" env-default:""`
}

// SchedulerConfig holds the periodic ingestion schedule.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled" env:"SCHEDULER_ENABLED" env-default:"false"`
	// CronSpec follows robfig/cron syntax; default runs daily at 02:00 UTC.
	CronSpec string `yaml:"cron_spec" env:"SCHEDULER_CRON_SPEC" env-default:"0 2 * * *"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Secrets (PGPASSWORD, CATALOG_JWT_TOKEN, ES_PASSWORD, REDIS_PASSWORD) must
// come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv reads configuration from environment variables only.
// Used in tests and when no config.yaml is present.
func LoadFromEnv(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return cfg, nil
}
