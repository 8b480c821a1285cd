package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"

	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// Options carries the command line settings of one invocation.
type Options struct {
	// ConfigBytes is the YAML configuration, either embedded or read from --config.
	ConfigBytes config.EmbeddedConfig
	// EnvFilePath is the .env file to load; empty loads ./.env when present.
	EnvFilePath string
	// RunName overrides notepipe.pipeline.run_name when set.
	RunName string
	// NewRun replaces the run name with a freshly generated one.
	NewRun bool
	// DBProviders is the comma-separated list of DB providers to register.
	DBProviders string
	// StopTimeout bounds the shutdown of the fx app.
	StopTimeout time.Duration
}

// applyOverrides decorates the loaded configuration with the command line overrides.
func (o Options) applyOverrides(cfg *config.Config) *config.Config {
	switch {
	case o.NewRun:
		cfg.Notepipe.Pipeline.RunName = uuid.NewString()
		logger.Infof("Starting new run '%s'.", cfg.Notepipe.Pipeline.RunName)
	case o.RunName != "":
		cfg.Notepipe.Pipeline.RunName = o.RunName
	}
	return cfg
}

// baseOptions are the fx options shared by every command: configuration, logging, storage
// and the checkpoint store.
func (o Options) baseOptions() []fx.Option {
	opts := []fx.Option{
		fx.Supply(
			o.ConfigBytes,
			fx.Annotate(o.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		logger.Module,
		config.Module,
		fx.Decorate(o.applyOverrides),
		StorageModule,
		CheckpointModule,
	}
	return append(opts, DBProviderOptions(o.DBProviders)...)
}

// withApp builds an fx app from opts, starts it, runs fn and stops the app again.
// The first error of building, starting, fn or stopping is returned.
func withApp(ctx context.Context, o Options, opts []fx.Option, fn func(ctx context.Context) error) (err error) {
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(ctx, app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	defer func() {
		timeout := o.StopTimeout
		if timeout <= 0 {
			timeout = app.StopTimeout()
		}
		stopCtx, cancelStop := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancelStop()
		if stopErr := app.Stop(stopCtx); stopErr != nil {
			logger.Errorf("Application did not stop cleanly: %v", stopErr)
			if err == nil {
				err = stopErr
			}
		}
		logger.Infof("Application is shut down.")
	}()

	return fn(ctx)
}
