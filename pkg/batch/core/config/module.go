package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Notepipe.System.Logging
}

// NewPipelineConfigProvider extracts *PipelineConfig from *Config.
func NewPipelineConfigProvider(cfg *Config) *PipelineConfig {
	return &cfg.Notepipe.Pipeline
}

// Module provides *Config and its commonly consumed sections to Fx.
// The application supplies EmbeddedConfig (and optionally envFilePath).
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewPipelineConfigProvider),
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
)
