package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/notepipe/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/notepipe/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/notepipe/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
)

type noteRow struct {
	ID    int    `gorm:"primaryKey"`
	Title string `gorm:"column:title"`
}

func (noteRow) TableName() string { return "notes" }

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Notepipe.AdapterConfigs["database"] = map[string]interface{}{
		"checkpoint": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(t.TempDir(), "notepipe.db"),
			"pool":     map[string]interface{}{"max_open_conns": 1},
		},
		"remote": map[string]interface{}{"type": "postgres", "host": "localhost"},
	}
	return cfg
}

func TestSQLiteProvider_ExecutorRoundTrip(t *testing.T) {
	provider := sqlite.NewProvider(newConfig(t))
	defer provider.CloseAll()
	ctx := context.Background()

	conn, err := provider.GetConnection("checkpoint")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conn.Type())
	assert.Equal(t, "checkpoint", conn.Name())
	require.NoError(t, conn.RefreshConnection(ctx))

	adapter, ok := conn.(*gormadapter.GormDBAdapter)
	require.True(t, ok)
	require.NoError(t, adapter.GetGormDB().AutoMigrate(&noteRow{}))

	_, err = conn.ExecuteUpsert(ctx, &noteRow{ID: 1, Title: "draft"}, "notes", []string{"id"}, []string{"title"})
	require.NoError(t, err)
	_, err = conn.ExecuteUpsert(ctx, &noteRow{ID: 1, Title: "final"}, "notes", []string{"id"}, []string{"title"})
	require.NoError(t, err)
	_, err = conn.ExecuteUpsert(ctx, &noteRow{ID: 2, Title: "other"}, "notes", []string{"id"}, nil)
	require.NoError(t, err)
	_, err = conn.ExecuteUpsert(ctx, &noteRow{ID: 2, Title: "ignored"}, "notes", []string{"id"}, nil)
	require.NoError(t, err)

	var rows []noteRow
	require.NoError(t, conn.ExecuteQuery(ctx, &rows, map[string]interface{}{"id": 1}))
	require.Len(t, rows, 1)
	assert.Equal(t, "final", rows[0].Title)

	rows = nil
	require.NoError(t, conn.ExecuteQuery(ctx, &rows, map[string]interface{}{"id": 2}))
	require.Len(t, rows, 1)
	assert.Equal(t, "other", rows[0].Title, "no update columns means do nothing on conflict")

	rows = nil
	require.NoError(t, conn.ExecuteQuery(ctx, &rows, map[string]interface{}{"id": 99}))
	assert.Empty(t, rows)

	rows = nil
	require.NoError(t, conn.ExecuteQuery(ctx, &rows, nil))
	assert.Len(t, rows, 2)
}

func TestSQLiteProvider_Errors(t *testing.T) {
	provider := sqlite.NewProvider(newConfig(t))
	_, err := provider.GetConnection("remote")
	assert.ErrorContains(t, err, "provider type mismatch")
	_, err = provider.GetConnection("missing")
	assert.ErrorContains(t, err, "not configured")
}

func TestResolver_ReconnectsClosedConnection(t *testing.T) {
	cfg := newConfig(t)
	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.GormDBConnectionResolverParams{
		DBProviders: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:         cfg,
	})
	defer resolver.CloseAll()
	ctx := context.Background()

	first, err := resolver.ResolveDBConnection(ctx, "checkpoint")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := resolver.ResolveDBConnection(ctx, "checkpoint")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NoError(t, second.RefreshConnection(ctx))

	_, err = resolver.ResolveDBConnection(ctx, "remote")
	assert.ErrorContains(t, err, "DBProvider for type 'postgres' not found")
}
