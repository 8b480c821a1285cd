package config_test

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/notepipe/pkg/batch/core/config"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
)

const sampleYAML = `
notepipe:
  pipeline:
    run_name: ${TEST_RUN_NAME:-nightly}
    batch_size: 5
    stages:
      clustering:
        concurrency_limit: 1
  clients:
    completion:
      endpoint: https://llm.example.com/v1/complete
      api_key: ${TEST_COMPLETION_KEY}
      tokens_per_minute: 1000
  checkpoint:
    store: sql
    database_ref: checkpoint
    auto_migrate: false
  adapter:
    database:
      checkpoint:
        type: sqlite
        database: ./data/checkpoint.db
        max_open_conns: "4"
`

func TestLoadConfig_LayersDefaultsYAMLAndEnv(t *testing.T) {
	t.Setenv("TEST_COMPLETION_KEY", "sk-test")
	t.Setenv("NOTEPIPE_PIPELINE_CONCURRENCY_LIMIT", "4")
	t.Setenv("NOTEPIPE_PIPELINE_STAGES_RAW_EXPORT_BATCH_SIZE", "20")
	t.Setenv("NOTEPIPE_CLIENTS_EMBEDDING_RETRY_RETRYABLE_ERRORS", "ErrRateLimited, *net.OpError")

	cfg, err := config.LoadConfig("", []byte(sampleYAML))
	require.NoError(t, err)

	p := cfg.Notepipe.Pipeline
	assert.Equal(t, "nightly", p.RunName, "placeholder default applies when the variable is unset")
	assert.Equal(t, 5, p.BatchSize)
	assert.Equal(t, 4, p.ConcurrencyLimit, "environment overrides YAML")
	assert.Equal(t, config.FlushPerItem, p.FlushMode, "default survives")
	assert.True(t, p.ExportParquet, "true default survives an omitted key")

	bs, cl := p.StageSettings("clustering")
	assert.Equal(t, 5, bs)
	assert.Equal(t, 1, cl)
	bs, _ = p.StageSettings("raw_export")
	assert.Equal(t, 20, bs, "map keys containing underscores resolve from env")

	c := cfg.Notepipe.Clients
	assert.Equal(t, "sk-test", c.Completion.APIKey)
	assert.Equal(t, 1000, c.Completion.TokensPerMinute)
	assert.Equal(t, 1000, c.Completion.Retry.InitialDelayMs)
	assert.Equal(t, []string{"ErrRateLimited", "*net.OpError"}, c.Embedding.Retry.RetryableErrors)

	assert.Equal(t, config.StoreSQL, cfg.Notepipe.Checkpoint.Store)
	assert.False(t, cfg.Notepipe.Checkpoint.AutoMigrate)
}

func TestDecodeAdapterConfig(t *testing.T) {
	cfg, err := config.LoadConfig("", []byte(sampleYAML))
	require.NoError(t, err)

	var out struct {
		Type         string `yaml:"type"`
		Database     string `yaml:"database"`
		MaxOpenConns int    `yaml:"max_open_conns"`
	}
	require.NoError(t, cfg.Notepipe.DecodeAdapterConfig("database", "checkpoint", &out))
	assert.Equal(t, "sqlite", out.Type)
	assert.Equal(t, "./data/checkpoint.db", out.Database)
	assert.Equal(t, 4, out.MaxOpenConns)

	assert.Error(t, cfg.Notepipe.DecodeAdapterConfig("database", "missing", &out))
	assert.Contains(t, cfg.Notepipe.AdapterNames("storage"), "local")
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Notepipe.Pipeline.BatchSize = 21
	cfg.Notepipe.Pipeline.ConcurrencyLimit = 0
	cfg.Notepipe.Pipeline.FlushMode = "sometimes"
	cfg.Notepipe.Clients.Completion.Retry.RetryableErrors = []string{"NoSuchError"}
	cfg.Notepipe.Checkpoint.Store = config.StoreSQL

	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)
	assert.Contains(t, err.Error(), "batch_size must be between 1 and 20")
	assert.Contains(t, err.Error(), "concurrency_limit must be between 1 and 5")
	assert.Contains(t, err.Error(), "flush_mode")
	assert.Contains(t, err.Error(), "NoSuchError")
	assert.Contains(t, err.Error(), "adapter.database")
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, config.NewConfig().Validate())
}

func TestLoadConfig_InvalidIsConfigurationError(t *testing.T) {
	_, err := config.LoadConfig("", []byte("notepipe:\n  pipeline:\n    batch_size: 0\n"))
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))

	_, err = config.LoadConfig("", []byte("notepipe: [unterminated"))
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))
}

func TestOsEnvironmentExpander(t *testing.T) {
	t.Setenv("EXPANDER_SET", "value")
	out, err := config.NewOsEnvironmentExpander().Expand([]byte("a=${EXPANDER_SET} b=${EXPANDER_UNSET:-fallback} c=${EXPANDER_UNSET} d=$literal"))
	require.NoError(t, err)
	assert.Equal(t, "a=value b=fallback c= d=$literal", string(out))
}
