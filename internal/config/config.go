// Package config loads settings from a .env file, SC_* environment variables
// and an optional TOML file carrying the rule book.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/statement-categorizer/internal/categorizer"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SC_STORE_BACKEND.
const EnvPrefix = "SC"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBigQuery = "bigquery"
)

// Config represents the application configuration.
type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Log         LogConfig         `mapstructure:"log"`
	Store       StoreConfig       `mapstructure:"store"`
	GCS         GCSConfig         `mapstructure:"gcs"`
	Categorizer CategorizerConfig `mapstructure:"categorizer"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Notion      NotionConfig      `mapstructure:"notion"`
	Jobs        JobsConfig        `mapstructure:"jobs"`

	// Rules are evaluated before the default rule book, in file order.
	Rules []categorizer.Rule `mapstructure:"rules"`
}

type HTTPConfig struct {
	Port           string        `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Backend         string `mapstructure:"backend"`
	DatabaseURL     string `mapstructure:"database_url"`
	BigQueryProject string `mapstructure:"bigquery_project"`
	BigQueryDataset string `mapstructure:"bigquery_dataset"`
	// CacheSize is the number of cached reads; 0 disables the cache.
	CacheSize int64 `mapstructure:"cache_size"`
}

type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

type CategorizerConfig struct {
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	GeminiModel    string        `mapstructure:"gemini_model"`
	MLTimeout      time.Duration `mapstructure:"ml_timeout"`
	MLRetries      int           `mapstructure:"ml_retries"`
	Concurrency    int           `mapstructure:"concurrency"`
	RuleConfidence float64       `mapstructure:"rule_confidence"`
	DefaultRules   bool          `mapstructure:"default_rules"`
}

// AuthConfig enables bearer token checks when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type NotionConfig struct {
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`
}

type JobsConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueSize  int `mapstructure:"queue_size"`
	MaxRetries int `mapstructure:"max_retries"`
}

// legacyEnv maps keys to the unprefixed variable names used by hosting
// platforms and the Google SDKs.
var legacyEnv = map[string]string{
	"http.port":                  "PORT",
	"store.database_url":         "DATABASE_URL",
	"store.bigquery_project":     "GOOGLE_CLOUD_PROJECT",
	"gcs.bucket":                 "GCS_BUCKET",
	"categorizer.gemini_api_key": "GEMINI_API_KEY",
	"notion.token":               "NOTION_TOKEN",
	"notion.database_id":         "NOTION_DATABASE_ID",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.shutdown_grace", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.bigquery_project", "")
	v.SetDefault("store.bigquery_dataset", "statement_categorizer")
	v.SetDefault("store.cache_size", 10000)
	v.SetDefault("gcs.bucket", "")
	v.SetDefault("categorizer.gemini_api_key", "")
	v.SetDefault("categorizer.gemini_model", "gemini-2.5-flash")
	v.SetDefault("categorizer.ml_timeout", categorizer.DefaultMLTimeout)
	v.SetDefault("categorizer.ml_retries", categorizer.DefaultGeminiRetryConfig.MaxRetries)
	v.SetDefault("categorizer.concurrency", categorizer.DefaultConcurrency)
	v.SetDefault("categorizer.rule_confidence", categorizer.DefaultRuleConfidence)
	v.SetDefault("categorizer.default_rules", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_size", 100)
	v.SetDefault("jobs.max_retries", 3)
}

// Load reads configuration. A .env file in the working directory is loaded
// first when present. configPath names a TOML file; when empty,
// ./categorizer.toml is read if it exists.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("Load: binding %s: %w", key, err)
		}
	}

	v.SetConfigType("toml")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("Load: failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("categorizer")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("Load: failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Load: failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("Validate: store.database_url (DATABASE_URL) is required for the postgres backend")
		}
	case BackendBigQuery:
		if c.Store.BigQueryProject == "" || c.Store.BigQueryDataset == "" {
			return fmt.Errorf("Validate: store.bigquery_project and store.bigquery_dataset are required for the bigquery backend")
		}
	default:
		return fmt.Errorf("Validate: unknown store backend %q", c.Store.Backend)
	}

	if c.Categorizer.MLTimeout <= 0 {
		return fmt.Errorf("Validate: categorizer.ml_timeout must be positive")
	}
	if c.Categorizer.RuleConfidence <= 0 || c.Categorizer.RuleConfidence > 1 {
		return fmt.Errorf("Validate: categorizer.rule_confidence must be in (0, 1]")
	}
	if (c.Notion.Token == "") != (c.Notion.DatabaseID == "") {
		return fmt.Errorf("Validate: notion.token and notion.database_id must be set together")
	}
	return nil
}

// RuleBook returns the configured rules followed by the default rule book
// when it is enabled.
func (c *Config) RuleBook() []categorizer.Rule {
	rules := append([]categorizer.Rule(nil), c.Rules...)
	if c.Categorizer.DefaultRules {
		rules = append(rules, categorizer.DefaultRules()...)
	}
	return rules
}

// RetryConfig returns the Gemini retry policy with the configured retry count.
func (c *Config) RetryConfig() categorizer.RetryConfig {
	rc := categorizer.DefaultGeminiRetryConfig
	rc.MaxRetries = c.Categorizer.MLRetries
	return rc
}
