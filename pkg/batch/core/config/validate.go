package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
)

// Bounds of the chunk settings.
const (
	MinBatchSize        = 1
	MaxBatchSize        = 20
	MinConcurrencyLimit = 1
	MaxConcurrencyLimit = 5
)

var knownStages = map[string]bool{
	"raw_export":  true,
	"enrichment":  true,
	"clustering":  true,
	"final_merge": true,
}

// Validate checks the configuration and returns every problem found, not just the first.
func (c *Config) Validate() error {
	var result *multierror.Error
	n := &c.Notepipe

	if n.Pipeline.RunName == "" {
		result = multierror.Append(result, fmt.Errorf("pipeline.run_name must not be empty"))
	}
	result = multierror.Append(result, validateChunkSettings("pipeline", n.Pipeline.BatchSize, n.Pipeline.ConcurrencyLimit))
	for name, o := range n.Pipeline.Stages {
		if !knownStages[name] {
			result = multierror.Append(result, fmt.Errorf("pipeline.stages: unknown stage '%s'", name))
			continue
		}
		bs, cl := n.Pipeline.StageSettings(name)
		if o.BatchSize != 0 || o.ConcurrencyLimit != 0 {
			result = multierror.Append(result, validateChunkSettings("pipeline.stages."+name, bs, cl))
		}
	}
	switch n.Pipeline.FlushMode {
	case FlushPerItem, FlushPerChunk:
	default:
		result = multierror.Append(result, fmt.Errorf("pipeline.flush_mode must be '%s' or '%s', got '%s'", FlushPerItem, FlushPerChunk, n.Pipeline.FlushMode))
	}

	result = multierror.Append(result, validateClient("clients.completion", &n.Clients.Completion))
	result = multierror.Append(result, validateClient("clients.embedding", &n.Clients.Embedding))

	switch n.Checkpoint.Store {
	case StoreObject:
		if _, ok := n.AdapterConfig("storage", n.Checkpoint.StorageRef); !ok {
			result = multierror.Append(result, fmt.Errorf("checkpoint.storage_ref '%s' is not defined under adapter.storage", n.Checkpoint.StorageRef))
		}
	case StoreSQL:
		if _, ok := n.AdapterConfig("database", n.Checkpoint.DatabaseRef); !ok {
			result = multierror.Append(result, fmt.Errorf("checkpoint.database_ref '%s' is not defined under adapter.database", n.Checkpoint.DatabaseRef))
		}
	case StoreMemory:
	default:
		result = multierror.Append(result, fmt.Errorf("checkpoint.store must be one of object, sql, memory; got '%s'", n.Checkpoint.Store))
	}

	if n.System.Timezone != "" {
		if _, err := time.LoadLocation(n.System.Timezone); err != nil {
			result = multierror.Append(result, fmt.Errorf("system.timezone: %w", err))
		}
	}
	if n.Metrics.AsyncBufferSize < 0 {
		result = multierror.Append(result, fmt.Errorf("metrics.async_buffer_size must not be negative, got %d", n.Metrics.AsyncBufferSize))
	}
	if n.Metrics.OTel.Enabled && n.Metrics.OTel.Protocol != "http" && n.Metrics.OTel.Protocol != "grpc" {
		result = multierror.Append(result, fmt.Errorf("metrics.otel.protocol must be 'http' or 'grpc', got '%s'", n.Metrics.OTel.Protocol))
	}

	return result.ErrorOrNil()
}

func validateChunkSettings(path string, batchSize, concurrencyLimit int) error {
	var result *multierror.Error
	if batchSize < MinBatchSize || batchSize > MaxBatchSize {
		result = multierror.Append(result, fmt.Errorf("%s.batch_size must be between %d and %d, got %d", path, MinBatchSize, MaxBatchSize, batchSize))
	}
	if concurrencyLimit < MinConcurrencyLimit || concurrencyLimit > MaxConcurrencyLimit {
		result = multierror.Append(result, fmt.Errorf("%s.concurrency_limit must be between %d and %d, got %d", path, MinConcurrencyLimit, MaxConcurrencyLimit, concurrencyLimit))
	}
	return result.ErrorOrNil()
}

func validateClient(path string, c *ExternalClientConfig) error {
	var result *multierror.Error
	if c.TokensPerMinute <= 0 {
		result = multierror.Append(result, fmt.Errorf("%s.tokens_per_minute must be positive", path))
	}
	if c.CharsPerToken <= 0 {
		result = multierror.Append(result, fmt.Errorf("%s.chars_per_token must be positive", path))
	}
	r := c.Retry
	if r.MaxRetries < 0 {
		result = multierror.Append(result, fmt.Errorf("%s.retry.max_retries must not be negative", path))
	}
	if r.InitialDelayMs <= 0 || r.MaxDelayMs <= 0 {
		result = multierror.Append(result, fmt.Errorf("%s.retry delays must be positive", path))
	} else if r.MaxDelayMs < r.InitialDelayMs {
		result = multierror.Append(result, fmt.Errorf("%s.retry.max_delay_ms (%d) is below initial_delay_ms (%d)", path, r.MaxDelayMs, r.InitialDelayMs))
	}
	if r.BackoffFactor < 1 {
		result = multierror.Append(result, fmt.Errorf("%s.retry.backoff_factor must be at least 1", path))
	}
	for _, name := range r.RetryableErrors {
		if !exception.IsErrorTypeRegistered(name) {
			result = multierror.Append(result, fmt.Errorf("%s.retry.retryable_errors references unknown error type '%s'", path, name))
		}
	}
	return result.ErrorOrNil()
}
