package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
)

func TestStageNamesAndOrder(t *testing.T) {
	names := []string{}
	for _, s := range model.AllStages() {
		names = append(names, s.String())
	}
	assert.Equal(t, []string{"raw_export", "enrichment", "clustering", "final_merge"}, names)

	s, err := model.ParseStage("clustering")
	require.NoError(t, err)
	assert.Equal(t, model.StageClustering, s)

	_, err = model.ParseStage("CLUSTERING")
	assert.Error(t, err)
	assert.False(t, model.Stage(9).Valid())
}

func TestStageStatusTransitions(t *testing.T) {
	assert.True(t, model.StatusNotStarted.CanStart())
	assert.True(t, model.StatusInProgress.CanStart())
	assert.True(t, model.StatusFailed.CanStart())
	assert.False(t, model.StatusCompleted.CanStart())
	assert.True(t, model.StatusCompleted.IsTerminal())

	_, err := model.ParseStageStatus("done")
	assert.Error(t, err)
}

func TestParseItemID(t *testing.T) {
	id, err := model.ParseItemID("42")
	require.NoError(t, err)
	assert.Equal(t, model.ItemID(42), id)
	assert.Equal(t, "42", id.String())

	for _, bad := range []string{"-1", "+3", "007", "x", ""} {
		_, err := model.ParseItemID(bad)
		assert.Error(t, err, bad)
	}
}

func TestCheckpointMetadata_JSONLayout(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := model.NewCheckpointMetadata(12, now)
	raw := m.Stage(model.StageRawExport)
	raw.Status = model.StatusInProgress
	raw.StartTime = &now
	raw.Processed.Add(10)
	raw.Processed.Add(2)
	raw.Processed.Add(0)
	raw.Failed.Add(1)
	enr := m.Stage(model.StageEnrichment)
	enr.Status = model.StatusFailed
	enr.Error = "store unavailable"

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "1.0.0", doc["version"])
	assert.Equal(t, float64(12), doc["totalItems"])
	assert.Equal(t, "2026-03-01T12:00:00Z", doc["createdAt"])

	stages := doc["stages"].(map[string]interface{})
	require.Len(t, stages, 4)
	rawDoc := stages["raw_export"].(map[string]interface{})
	assert.Equal(t, "in_progress", rawDoc["status"])
	assert.Equal(t, []interface{}{"0", "2", "10"}, rawDoc["processedNoteIds"], "ids are sorted numerically")
	assert.Equal(t, []interface{}{"1"}, rawDoc["failedNoteIds"])
	assert.NotContains(t, rawDoc, "error")
	assert.Equal(t, "store unavailable", stages["enrichment"].(map[string]interface{})["error"])
	assert.Equal(t, []interface{}{}, stages["final_merge"].(map[string]interface{})["processedNoteIds"])

	var back model.CheckpointMetadata
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.TotalItems, back.TotalItems)
	assert.True(t, back.Stage(model.StageRawExport).Processed.Has(10))
	assert.True(t, back.Stage(model.StageRawExport).Failed.Has(1))
	assert.Equal(t, "store unavailable", back.Stage(model.StageEnrichment).Error)
	assert.True(t, now.Equal(*back.Stage(model.StageRawExport).StartTime))
	require.NoError(t, back.Validate())
}

func TestCheckpointMetadata_UnmarshalRejectsUnknownValues(t *testing.T) {
	var m model.CheckpointMetadata

	err := json.Unmarshal([]byte(`{"version":"1.0.0","totalItems":1,"stages":{"publish":{"status":"not_started"}}}`), &m)
	assert.ErrorContains(t, err, "unknown stage 'publish'")

	err = json.Unmarshal([]byte(`{"version":"1.0.0","totalItems":1,"stages":{"raw_export":{"status":"paused"}}}`), &m)
	assert.ErrorContains(t, err, "unknown stage status 'paused'")

	err = json.Unmarshal([]byte(`{"version":"1.0.0","totalItems":1,"stages":{"raw_export":{"status":"completed","processedNoteIds":["01"]}}}`), &m)
	assert.Error(t, err)
}

func TestCheckpointMetadata_UnmarshalFillsMissingStages(t *testing.T) {
	var m model.CheckpointMetadata
	require.NoError(t, json.Unmarshal([]byte(`{"version":"1.0.0","totalItems":3,"stages":{"raw_export":{"status":"completed","processedNoteIds":["0","1","2"],"failedNoteIds":[],"error":null}}}`), &m))

	assert.Len(t, m.Stages, 4)
	assert.Equal(t, model.StatusCompleted, m.Stage(model.StageRawExport).Status)
	assert.Equal(t, model.StatusNotStarted, m.Stage(model.StageFinalMerge).Status)
	assert.Empty(t, m.Stage(model.StageRawExport).Error)
}

func TestCheckpointMetadata_ValidateAndClone(t *testing.T) {
	m := model.NewCheckpointMetadata(5, time.Now())
	p := m.Stage(model.StageClustering)
	p.Processed.Add(3)

	c := m.Clone()
	c.Stage(model.StageClustering).Failed.Add(3)
	assert.False(t, p.Failed.Has(3), "clone must not share sets")
	assert.ErrorContains(t, c.Validate(), "both processed and failed")
	assert.NoError(t, m.Validate())

	m.Version = "2.0.0"
	assert.Error(t, m.Validate())
}
