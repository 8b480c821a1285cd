package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	coreAdapter "github.com/tigerroll/notepipe/pkg/batch/core/adapter"
	coreConfig "github.com/tigerroll/notepipe/pkg/batch/core/config"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// ConnectionResolver implements StorageConnectionResolver over the registered providers.
// The provider of a connection is chosen by the "type" of its adapter.storage.<name> entry.
type ConnectionResolver struct {
	providers map[string]StorageProvider
	cfg       *coreConfig.Config
	mu        sync.Mutex
}

// Verify that ConnectionResolver implements the StorageConnectionResolver interface.
var _ StorageConnectionResolver = (*ConnectionResolver)(nil)

// NewConnectionResolver creates a resolver over providers, keyed by their Type().
//
// Parameters:
//
//	providers: The storage providers collected from the "storage_providers" group.
//	cfg: The application configuration holding adapter.storage.
//
// Returns:
//
//	A new ConnectionResolver.
func NewConnectionResolver(providers []StorageProvider, cfg *coreConfig.Config) *ConnectionResolver {
	byType := make(map[string]StorageProvider, len(providers))
	for _, p := range providers {
		byType[p.Type()] = p
	}
	return &ConnectionResolver{providers: byType, cfg: cfg}
}

// ResolveConnection resolves a generic resource connection by name.
func (r *ConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveStorageConnection(ctx, name)
}

// ResolveStorageConnection resolves the StorageConnection declared as adapter.storage.<name>.
func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	var typed struct {
		Type string `yaml:"type"`
	}
	if err := r.cfg.Notepipe.DecodeAdapterConfig("storage", name, &typed); err != nil {
		return nil, fmt.Errorf("storage connection '%s': %w", name, err)
	}

	r.mu.Lock()
	provider, ok := r.providers[typed.Type]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", typed.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage connection '%s' from provider '%s': %w", name, typed.Type, err)
	}
	return conn, nil
}

// CloseAll closes the connections of every provider.
func (r *ConnectionResolver) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result *multierror.Error
	for t, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, fmt.Errorf("storage provider '%s': %w", t, err))
		}
	}
	if result == nil {
		logger.Debugf("StorageResolver: all storage connections closed.")
	}
	return result.ErrorOrNil()
}
