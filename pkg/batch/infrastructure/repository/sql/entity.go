package sql

import (
	"encoding/json"
	"fmt"
	"time"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
)

// CheckpointEntity is the row holding the checkpoint document of one run.
type CheckpointEntity struct {
	RunName     string    `gorm:"column:run_name;primaryKey"`
	Version     string    `gorm:"column:version"`
	TotalItems  int       `gorm:"column:total_items"`
	Document    string    `gorm:"column:document"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	LastUpdated time.Time `gorm:"column:last_updated"`
}

// TableName implements gorm's Tabler.
func (CheckpointEntity) TableName() string {
	return "pipeline_checkpoints"
}

// upsertColumns are overwritten when the run already has a row. created_at is kept.
var upsertColumns = []string{"version", "total_items", "document", "last_updated"}

func fromDomainCheckpoint(runName string, m *model.CheckpointMetadata) (*CheckpointEntity, error) {
	doc, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint document: %w", err)
	}
	return &CheckpointEntity{
		RunName:     runName,
		Version:     m.Version,
		TotalItems:  m.TotalItems,
		Document:    string(doc),
		CreatedAt:   m.CreatedAt.UTC(),
		LastUpdated: m.LastUpdated.UTC(),
	}, nil
}

func toDomainCheckpoint(entity *CheckpointEntity) (*model.CheckpointMetadata, error) {
	var m model.CheckpointMetadata
	if err := json.Unmarshal([]byte(entity.Document), &m); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint document of run '%s': %w", entity.RunName, err)
	}
	return &m, nil
}
