package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/statement-categorizer/internal/categorizer"
	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no stray .env or
// categorizer.toml is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, int64(10000), cfg.Store.CacheSize)
	assert.Equal(t, 5*time.Second, cfg.Categorizer.MLTimeout)
	assert.Equal(t, categorizer.DefaultRuleConfidence, cfg.Categorizer.RuleConfidence)
	assert.True(t, cfg.Categorizer.DefaultRules)
	assert.Empty(t, cfg.Rules)
	assert.Len(t, cfg.RuleBook(), len(categorizer.DefaultRules()))
}

func TestLoadEnvironment(t *testing.T) {
	inTempDir(t)
	t.Setenv("SC_STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	t.Setenv("SC_CATEGORIZER_ML_TIMEOUT", "750ms")
	t.Setenv("SC_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/ledger", cfg.Store.DatabaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.Categorizer.MLTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SC_GCS_BUCKET=statements-archive\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SC_GCS_BUCKET") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "statements-archive", cfg.GCS.Bucket)
}

func TestLoadRulesFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "rules.toml")
	content := `
[categorizer]
default_rules = false
rule_confidence = 0.9

[[rules]]
name = "landlord"
pattern = "RENT TO SHARMA"
category = "Bills"

[[rules]]
name = "big-transfer"
pattern = "^neft"
regex = true
category = "Internal_Transfer"
confidence = 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, "landlord", cfg.Rules[0].Name)
	assert.Equal(t, domain.CategoryBills, cfg.Rules[0].Category)
	assert.True(t, cfg.Rules[1].Regex)
	assert.Equal(t, 0.8, cfg.Rules[1].Confidence)
	assert.Len(t, cfg.RuleBook(), 2)

	rs, err := categorizer.NewRuleSet(cfg.RuleBook(), cfg.Categorizer.RuleConfidence)
	require.NoError(t, err)
	match, ok := rs.Match(categorizer.Input{Description: "Rent to Sharma March"})
	require.True(t, ok)
	assert.Equal(t, "landlord", match.Rule)
	assert.Equal(t, 0.9, match.Confidence)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	inTempDir(t)
	_, err := Load("does-not-exist.toml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Store:       StoreConfig{Backend: BackendMemory},
			Categorizer: CategorizerConfig{MLTimeout: time.Second, RuleConfidence: 0.95},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"memory", func(c *Config) {}, false},
		{"postgres without url", func(c *Config) { c.Store.Backend = BackendPostgres }, true},
		{"bigquery with project", func(c *Config) {
			c.Store.Backend = BackendBigQuery
			c.Store.BigQueryProject = "p"
			c.Store.BigQueryDataset = "d"
		}, false},
		{"bigquery without project", func(c *Config) { c.Store.Backend = BackendBigQuery }, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, true},
		{"zero timeout", func(c *Config) { c.Categorizer.MLTimeout = 0 }, true},
		{"confidence above one", func(c *Config) { c.Categorizer.RuleConfidence = 1.5 }, true},
		{"notion half configured", func(c *Config) { c.Notion.Token = "secret" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryConfig(t *testing.T) {
	cfg := Config{Categorizer: CategorizerConfig{MLRetries: 5}}
	rc := cfg.RetryConfig()
	assert.Equal(t, 5, rc.MaxRetries)
	assert.Equal(t, categorizer.DefaultGeminiRetryConfig.InitialDelay, rc.InitialDelay)
}
