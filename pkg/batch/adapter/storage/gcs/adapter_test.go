package gcs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/notepipe/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/notepipe/pkg/batch/adapter/storage/gcs"
	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
)

func TestClientOptions(t *testing.T) {
	assert.Empty(t, gcs.ClientOptions(storageConfig.StorageConfig{Type: "gcs", BucketName: "b"}))
	assert.Len(t, gcs.ClientOptions(storageConfig.StorageConfig{CredentialsFile: "/key.json"}), 1)
	assert.Len(t, gcs.ClientOptions(storageConfig.StorageConfig{Endpoint: "http://localhost:4443/storage/v1/"}), 2, "an emulator endpoint without credentials is unauthenticated")
	assert.Len(t, gcs.ClientOptions(storageConfig.StorageConfig{CredentialsFile: "/key.json", Endpoint: "http://e"}), 2)
}

func TestGCSProvider_ConnectionLifecycle(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Notepipe.AdapterConfigs["storage"] = map[string]interface{}{
		"archive":   map[string]interface{}{"type": "gcs", "bucket_name": "notes-archive", "endpoint": "http://127.0.0.1:1/storage/v1/"},
		"no-bucket": map[string]interface{}{"type": "gcs"},
		"disk":      map[string]interface{}{"type": "local", "base_dir": "/tmp"},
	}
	p := gcs.NewGCSProvider(cfg)
	assert.Equal(t, "gcs", p.Type())

	conn, err := p.GetConnection("archive")
	require.NoError(t, err)
	assert.Equal(t, "archive", conn.Name())
	assert.Equal(t, "gcs", conn.Type())

	again, err := p.GetConnection("archive")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = p.GetConnection("no-bucket")
	assert.ErrorContains(t, err, "bucket_name must be specified")
	_, err = p.GetConnection("disk")
	assert.ErrorContains(t, err, "type mismatch")

	assert.NoError(t, p.CloseAll())
}
