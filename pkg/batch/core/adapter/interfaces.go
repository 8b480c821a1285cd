// Package adapter defines the resource abstractions shared by the storage and database adapters.
package adapter

import (
	"context"
)

// ResourceConnection represents a generic connection to any resource (e.g., database, storage).
type ResourceConnection interface {
	// Close closes the resource connection.
	Close() error
	// Type returns the type of the resource (e.g., "sqlite", "gcs").
	Type() string
	// Name returns the connection name as declared in the adapter configuration (e.g., "checkpoint").
	Name() string
}

// ResourceProvider is responsible for providing resource connections based on configuration.
type ResourceProvider interface {
	// GetConnection retrieves a resource connection with the specified name.
	GetConnection(name string) (ResourceConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the type of resource handled by this provider.
	Type() string
}

// ResourceConnectionResolver resolves a named resource connection.
type ResourceConnectionResolver interface {
	// ResolveConnection resolves a resource connection instance by name.
	// Implementations ensure the returned connection is valid and re-establish it if necessary.
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}
