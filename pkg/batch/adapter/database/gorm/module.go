package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/notepipe/pkg/batch/adapter/database"
)

// NewResolver provides the resolver and closes every connection on stop.
func NewResolver(lc fx.Lifecycle, p GormDBConnectionResolverParams) database.DBConnectionResolver {
	resolver := NewGormDBConnectionResolver(p)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return resolver.CloseAll()
		},
	})
	return resolver
}

// Module provides the DBConnectionResolver. Dialect modules (sqlite, postgres, mysql)
// contribute the providers.
var Module = fx.Options(
	fx.Provide(NewResolver),
)
