// Package config provides the configuration structures of notepipe and the loader that
// fills them from defaults, YAML, a .env file and environment variables.
package config

// EmbeddedConfig holds the content of the default configuration file compiled into the binary.
type EmbeddedConfig []byte

// FlushMode controls when the progress tracker persists item settlements.
type FlushMode string

const (
	// FlushPerItem persists every settlement immediately.
	FlushPerItem FlushMode = "per_item"
	// FlushPerChunk persists once per chunk. Settlements of an interrupted chunk may be lost
	// and those items are re-run on resume.
	FlushPerChunk FlushMode = "per_chunk"
)

// Checkpoint store types.
const (
	StoreObject = "object"
	StoreSQL    = "sql"
	StoreMemory = "memory"
)

// StageOverride overrides the pipeline-wide chunk settings for one stage.
type StageOverride struct {
	BatchSize        int `yaml:"batch_size"`
	ConcurrencyLimit int `yaml:"concurrency_limit"`
}

// PipelineConfig holds the settings of a pipeline run.
type PipelineConfig struct {
	// RunName identifies the run; the checkpoint is keyed by it so a restart resumes it.
	RunName string `yaml:"run_name"`
	// BatchSize is the number of pending ids handed to the batch runner per chunk (1..20).
	BatchSize int `yaml:"batch_size"`
	// ConcurrencyLimit is the maximum number of in-flight workers (1..5).
	ConcurrencyLimit int `yaml:"concurrency_limit"`
	// FlushMode is "per_item" or "per_chunk".
	FlushMode FlushMode `yaml:"flush_mode"`
	// SourceStorageRef names the storage connection holding the exported notes.
	SourceStorageRef string `yaml:"source_storage_ref"`
	// SourcePrefix is the object prefix of the exported notes.
	SourcePrefix string `yaml:"source_prefix"`
	// ArtifactStorageRef names the storage connection stage outputs are written to.
	ArtifactStorageRef string `yaml:"artifact_storage_ref"`
	// ExportParquet writes merged/notes.parquet after FINAL_MERGE completes.
	ExportParquet bool `yaml:"export_parquet"`
	// Stages holds per-stage overrides keyed by stage name (e.g. "enrichment").
	Stages map[string]StageOverride `yaml:"stages"`
}

// RetryConfig holds the retry settings of one external client.
type RetryConfig struct {
	MaxRetries      int      `yaml:"max_retries"`
	InitialDelayMs  int      `yaml:"initial_delay_ms"`
	BackoffFactor   float64  `yaml:"backoff_factor"`
	MaxDelayMs      int      `yaml:"max_delay_ms"`
	RetryableErrors []string `yaml:"retryable_errors"` // Names registered in the exception registry. Empty retries every error except item and configuration errors.
}

// ExternalClientConfig holds the settings of one rate-limited external service.
type ExternalClientConfig struct {
	Endpoint        string      `yaml:"endpoint"`
	APIKey          string      `yaml:"api_key"`
	Model           string      `yaml:"model"`
	TimeoutSeconds  int         `yaml:"timeout_seconds"`
	TokensPerMinute int         `yaml:"tokens_per_minute"`
	CharsPerToken   int         `yaml:"chars_per_token"`
	Retry           RetryConfig `yaml:"retry"`
}

// ClientsConfig groups the external clients. Each has an independent budget.
type ClientsConfig struct {
	Completion ExternalClientConfig `yaml:"completion"`
	Embedding  ExternalClientConfig `yaml:"embedding"`
}

// CheckpointConfig selects and configures the checkpoint store.
type CheckpointConfig struct {
	Store       string `yaml:"store"`        // "object", "sql" or "memory".
	StorageRef  string `yaml:"storage_ref"`  // Storage connection for the object store.
	Prefix      string `yaml:"prefix"`       // Object prefix; the document lives at <prefix>/<run>/checkpoint.json.
	DatabaseRef string `yaml:"database_ref"` // Database connection for the SQL store.
	AutoMigrate bool   `yaml:"auto_migrate"` // Apply embedded migrations when the SQL store is opened.
}

// PrometheusConfig configures the Prometheus exposition endpoint.
type PrometheusConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
}

// OTelConfig configures OpenTelemetry trace and metric export.
type OTelConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Protocol              string `yaml:"protocol"` // "http" or "grpc".
	Endpoint              string `yaml:"endpoint"`
	Insecure              bool   `yaml:"insecure"`
	ServiceName           string `yaml:"service_name"`
	ExportIntervalSeconds int    `yaml:"export_interval_seconds"`
}

// MetricsConfig groups the observability backends.
type MetricsConfig struct {
	Prometheus PrometheusConfig `yaml:"prometheus"`
	OTel       OTelConfig       `yaml:"otel"`
	// AsyncBufferSize is the event queue size of the asynchronous recorder; 0 records synchronously.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// NotepipeConfig holds everything under the "notepipe" top-level key.
type NotepipeConfig struct {
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Clients    ClientsConfig    `yaml:"clients"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	System     SystemConfig     `yaml:"system"`
	// AdapterConfigs holds raw adapter settings: adapter.storage.<name> and adapter.database.<name>.
	AdapterConfigs map[string]interface{} `yaml:"adapter"`
}

// Config is the root of the application configuration.
type Config struct {
	Notepipe NotepipeConfig `yaml:"notepipe"`
}

func defaultRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialDelayMs: 1000,
		BackoffFactor:  2,
		MaxDelayMs:     8000,
		RetryableErrors: []string{
			"ErrRateLimited",
			"ErrServerUnavailable",
			"context.DeadlineExceeded",
			"*net.OpError",
		},
	}
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Notepipe: NotepipeConfig{
			Pipeline: PipelineConfig{
				RunName:            "default",
				BatchSize:          10,
				ConcurrencyLimit:   3,
				FlushMode:          FlushPerItem,
				SourceStorageRef:   "local",
				SourcePrefix:       "notes",
				ArtifactStorageRef: "local",
				ExportParquet:      true,
				Stages:             map[string]StageOverride{},
			},
			Clients: ClientsConfig{
				Completion: ExternalClientConfig{
					TimeoutSeconds:  60,
					TokensPerMinute: 90000,
					CharsPerToken:   4,
					Retry:           defaultRetry(),
				},
				Embedding: ExternalClientConfig{
					TimeoutSeconds:  30,
					TokensPerMinute: 1000000,
					CharsPerToken:   4,
					Retry:           defaultRetry(),
				},
			},
			Checkpoint: CheckpointConfig{
				Store:       StoreObject,
				StorageRef:  "local",
				Prefix:      "runs",
				DatabaseRef: "checkpoint",
				AutoMigrate: true,
			},
			Metrics: MetricsConfig{
				Prometheus: PrometheusConfig{ListenAddr: ":9090", Path: "/metrics"},
				OTel: OTelConfig{
					Protocol:              "http",
					Endpoint:              "localhost:4318",
					Insecure:              true,
					ServiceName:           "notepipe",
					ExportIntervalSeconds: 10,
				},
				AsyncBufferSize: 256,
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			AdapterConfigs: map[string]interface{}{
				"storage": map[string]interface{}{
					"local": map[string]interface{}{
						"type":     "local",
						"base_dir": "./data",
					},
				},
			},
		},
	}
}

// StageSettings returns the effective batch size and concurrency limit for a stage name.
func (c *PipelineConfig) StageSettings(stage string) (batchSize, concurrencyLimit int) {
	batchSize, concurrencyLimit = c.BatchSize, c.ConcurrencyLimit
	if o, ok := c.Stages[stage]; ok {
		if o.BatchSize != 0 {
			batchSize = o.BatchSize
		}
		if o.ConcurrencyLimit != 0 {
			concurrencyLimit = o.ConcurrencyLimit
		}
	}
	return batchSize, concurrencyLimit
}
