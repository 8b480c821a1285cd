package logging_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	port "github.com/tigerroll/notepipe/pkg/batch/core/application/port"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/listener/logging"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	prev := logger.GetLogLevel()
	logger.SetLogLevel("INFO")
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		logger.SetLogLevel(prev.String())
	})
	return buf
}

func TestLoggingStageListener_AfterStageLevelFollowsStatus(t *testing.T) {
	buf := captureOutput(t)
	l := logging.NewLoggingStageListener()
	ctx := context.Background()

	l.AfterStage(ctx, model.StageEnrichment, port.StageSummary{Status: model.StatusCompleted, Processed: 3, PercentComplete: 100})
	assert.Contains(t, buf.String(), "[INFO] StageListener: AfterStage - Stage: enrichment, Status: completed")

	buf.Reset()
	l.AfterStage(ctx, model.StageClustering, port.StageSummary{Status: model.StatusFailed, Err: errors.New("store unavailable")})
	assert.Contains(t, buf.String(), "[WARN] StageListener: AfterStage - Stage: clustering, Status: failed")
	assert.Contains(t, buf.String(), "store unavailable")
}

func TestLoggingStageListener_ItemFailureIsWarned(t *testing.T) {
	buf := captureOutput(t)
	l := logging.NewLoggingStageListener()

	l.OnItemFailure(context.Background(), model.StageRawExport, 7, errors.New("empty body"))
	assert.Contains(t, buf.String(), "[WARN] StageListener: OnItemFailure - Stage: raw_export, Item: 7, Error: empty body")

	buf.Reset()
	l.BeforeChunk(context.Background(), model.StageRawExport, 0, []model.ItemID{1, 2})
	assert.Empty(t, buf.String(), "chunk contents are logged at debug level only")
}
