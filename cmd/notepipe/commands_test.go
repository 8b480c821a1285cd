package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "notepipe.yaml")
	content := fmt.Sprintf(`
notepipe:
  clients:
    completion:
      endpoint: http://127.0.0.1:1/enrich
    embedding:
      endpoint: http://127.0.0.1:1/embed
  adapter:
    storage:
      local:
        type: local
        base_dir: %s
    database:
      checkpoint:
        type: sqlite
        database: %s
`, dir, filepath.Join(dir, "checkpoint.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(embeddedConfig)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusCommand_NoCheckpoint(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, "status", "--config", writeConfig(t, dir), "--run", "fresh", "--db-providers", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "run fresh: no checkpoint")
}

func TestMigrateCommand_UpAndDown(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	out, err := runCLI(t, "migrate", "--config", cfg, "--db-providers", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "checkpoint schema at version 1")

	out, err = runCLI(t, "migrate", "down", "--config", cfg, "--db-providers", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "no migrations applied")

	_, err = runCLI(t, "migrate", "sideways", "--config", cfg)
	assert.Error(t, err)
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	_, err := runCLI(t, "status", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))
}

func TestExecute_ReleasesSignalContext(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want int
	}{
		{"failure", []string{"status", "--config", filepath.Join(t.TempDir(), "absent.yaml")}, exitConfig},
		{"success", []string{"status", "--config", writeConfig(t, t.TempDir()), "--run", "fresh", "--db-providers", "sqlite"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, stop := context.WithCancel(context.Background())
			cmd := newRootCmd(embeddedConfig)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tc.args)

			assert.Equal(t, tc.want, execute(ctx, stop, cmd))
			assert.ErrorIs(t, ctx.Err(), context.Canceled, "stop runs before the exit status is returned")
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitInterrupted, exitCode(fmt.Errorf("stage: %w", context.Canceled)))
	assert.Equal(t, exitConfig, exitCode(exception.NewConfigurationError("cli", "bad", nil)))
	assert.Equal(t, exitFailure, exitCode(exception.NewStageFailure("orchestrator", "boom", nil)))
	assert.Equal(t, exitFailure, exitCode(errors.New("other")))
}

func TestEmbeddedConfigIsValid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NOTEPIPE_DATA_DIR", dir)
	t.Setenv("NOTEPIPE_CHECKPOINT_DB", filepath.Join(dir, "checkpoint.db"))

	out, err := runCLI(t, "status", "--run", "embedded", "--db-providers", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "run embedded: no checkpoint")
}
