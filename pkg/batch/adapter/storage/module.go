package storage

import (
	"context"

	"go.uber.org/fx"

	coreConfig "github.com/tigerroll/notepipe/pkg/batch/core/config"
)

// StorageResolverParams collects the registered storage providers.
type StorageResolverParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Providers []StorageProvider `group:"storage_providers"`
	Config    *coreConfig.Config
}

// NewStorageResolver provides the ConnectionResolver and closes every connection on stop.
func NewStorageResolver(p StorageResolverParams) StorageConnectionResolver {
	resolver := NewConnectionResolver(p.Providers, p.Config)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return resolver.CloseAll()
		},
	})
	return resolver
}

// Module provides the StorageConnectionResolver. Provider modules (local, gcs) contribute to
// the "storage_providers" group.
var Module = fx.Options(
	fx.Provide(NewStorageResolver),
)
