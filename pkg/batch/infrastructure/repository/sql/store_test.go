package sql_test

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/notepipe/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/notepipe/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/notepipe/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/notepipe/pkg/batch/adapter/database/gorm/sqlite"
	coreAdapter "github.com/tigerroll/notepipe/pkg/batch/core/adapter"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/notepipe/pkg/batch/core/domain/repository"
	sqlrepo "github.com/tigerroll/notepipe/pkg/batch/infrastructure/repository/sql"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// staticResolver always resolves to the same connection.
type staticResolver struct {
	conn database.DBConnection
	err  error
}

func (r staticResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func openSQLite(t *testing.T) database.DBConnection {
	t.Helper()
	cfg := dbconfig.DatabaseConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), "checkpoint.db")}
	db, err := gormadapter.Open(cfg)
	require.NoError(t, err)
	conn, err := gormadapter.NewGormDBAdapter(db, cfg, "checkpoint")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sampleCheckpoint() *model.CheckpointMetadata {
	meta := model.NewCheckpointMetadata(4, t0)
	raw := meta.Stage(model.StageRawExport)
	raw.Status = model.StatusInProgress
	start := t0.Add(time.Minute)
	raw.StartTime = &start
	raw.Processed.Add(0)
	raw.Processed.Add(2)
	raw.Failed.Add(1)
	meta.LastUpdated = t0.Add(2 * time.Minute)
	return meta
}

func TestMigrator_UpVersionDown(t *testing.T) {
	conn := openSQLite(t)
	ctx := context.Background()
	m := sqlrepo.NewMigrator(conn)

	_, ok, err := m.Version(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx), "a second Up is a no-op")
	v, ok, err := m.Version(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(1), v)

	var rows []sqlrepo.CheckpointEntity
	require.NoError(t, conn.ExecuteQuery(ctx, &rows, nil))
	assert.Empty(t, rows)

	require.NoError(t, m.Down(ctx))
	assert.Error(t, conn.ExecuteQuery(ctx, &rows, nil), "the table is gone")
	require.NoError(t, conn.RefreshConnection(ctx), "migrations leave the shared connection open")
}

func TestSQLCheckpointStore_RoundTrip(t *testing.T) {
	conn := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, sqlrepo.NewMigrator(conn).Up(ctx))

	store := sqlrepo.NewSQLCheckpointStore(staticResolver{conn: conn}, "checkpoint", "run-a")
	other := sqlrepo.NewSQLCheckpointStore(staticResolver{conn: conn}, "checkpoint", "run-b")

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, repository.ErrCheckpointNotFound)

	meta := sampleCheckpoint()
	require.NoError(t, store.Save(ctx, meta))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointVersion, loaded.Version)
	assert.Equal(t, 4, loaded.TotalItems)
	raw := loaded.Stage(model.StageRawExport)
	assert.Equal(t, model.StatusInProgress, raw.Status)
	assert.Equal(t, []model.ItemID{0, 2}, raw.Processed.Sorted())
	assert.Equal(t, []model.ItemID{1}, raw.Failed.Sorted())
	assert.True(t, loaded.CreatedAt.Equal(t0))
	assert.Equal(t, model.StatusNotStarted, loaded.Stage(model.StageFinalMerge).Status)

	// Overwrite in place.
	meta.Stage(model.StageRawExport).Processed.Add(3)
	meta.Stage(model.StageRawExport).Status = model.StatusCompleted
	require.NoError(t, store.Save(ctx, meta))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, loaded.Stage(model.StageRawExport).Status)
	assert.Equal(t, []model.ItemID{0, 2, 3}, loaded.Stage(model.StageRawExport).Processed.Sorted())

	var rows []sqlrepo.CheckpointEntity
	require.NoError(t, conn.ExecuteQuery(ctx, &rows, nil))
	assert.Len(t, rows, 1, "one row per run")

	_, err = other.Load(ctx)
	assert.ErrorIs(t, err, repository.ErrCheckpointNotFound, "runs are isolated")
	assert.NoError(t, store.Close())
}

func TestSQLCheckpointStore_ResolveError(t *testing.T) {
	store := sqlrepo.NewSQLCheckpointStore(staticResolver{err: errors.New("no such connection")}, "checkpoint", "run")
	_, err := store.Load(context.Background())
	assert.ErrorContains(t, err, "no such connection")
	assert.ErrorContains(t, store.Save(context.Background(), sampleCheckpoint()), "no such connection")
}

func newMockConn(t *testing.T) (database.DBConnection, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: gormadapter.NewGormLogger("SILENT"),
	})
	require.NoError(t, err)
	conn, err := gormadapter.NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "mysql"}, "checkpoint")
	require.NoError(t, err)
	return conn, mock
}

func TestSQLCheckpointStore_SaveErrorIsReported(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `pipeline_checkpoints`")).
		WillReturnError(errors.New("deadlock found"))

	store := sqlrepo.NewSQLCheckpointStore(staticResolver{conn: conn}, "checkpoint", "run")
	err := store.Save(context.Background(), sampleCheckpoint())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCheckpointStore_UpsertStatement(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `pipeline_checkpoints`") + ".*" + regexp.QuoteMeta("ON DUPLICATE KEY UPDATE")).
		WithArgs("run", model.CheckpointVersion, 4, sqlmock.AnyArg(), t0, t0.Add(2*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := sqlrepo.NewSQLCheckpointStore(staticResolver{conn: conn}, "checkpoint", "run")
	require.NoError(t, store.Save(context.Background(), sampleCheckpoint()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCheckpointStore_LoadErrors(t *testing.T) {
	conn, mock := newMockConn(t)
	query := regexp.QuoteMeta("SELECT * FROM `pipeline_checkpoints` WHERE `run_name` = ?")
	mock.ExpectQuery(query).WithArgs("run").WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery(query).WithArgs("run").WillReturnRows(
		sqlmock.NewRows([]string{"run_name", "version", "total_items", "document", "created_at", "last_updated"}).
			AddRow("run", "1.0.0", 4, "{not json", t0, t0),
	)

	store := sqlrepo.NewSQLCheckpointStore(staticResolver{conn: conn}, "checkpoint", "run")
	_, err := store.Load(context.Background())
	assert.ErrorContains(t, err, "connection reset")

	_, err = store.Load(context.Background())
	assert.ErrorContains(t, err, "unreadable")
	assert.NotErrorIs(t, err, repository.ErrCheckpointNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
