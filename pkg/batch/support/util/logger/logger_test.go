package logger_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	prev := logger.GetLogLevel()
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		logger.SetLogLevel(prev.String())
	})
	return buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug":  logger.LevelDebug,
		"TRACE":  logger.LevelDebug,
		"Info":   logger.LevelInfo,
		"":       logger.LevelInfo,
		"warn":   logger.LevelWarn,
		"ERROR":  logger.LevelError,
		"silent": logger.LevelFatal,
	}
	for in, want := range cases {
		got, err := logger.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := logger.ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)

	logger.SetLogLevel("WARN")
	logger.Debugf("debug %d", 1)
	logger.Infof("info %d", 2)
	logger.Warnf("warn %d", 3)
	logger.Errorf("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
}

func TestSetLogLevel_UnknownFallsBackToInfo(t *testing.T) {
	buf := captureOutput(t)

	logger.SetLogLevel("loud")
	assert.Equal(t, logger.LevelInfo, logger.GetLogLevel())
	assert.Contains(t, buf.String(), "unknown log level 'loud'")
}
