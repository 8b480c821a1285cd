// Package model defines the domain types of the pipeline engine: stages, their statuses,
// item identifiers and the checkpoint document that records per-stage progress.
package model

import "fmt"

// Stage is one ordered phase of the pipeline.
type Stage int

const (
	// StageRawExport copies each source note into the run's working area.
	StageRawExport Stage = iota
	// StageEnrichment calls the completion service for every exported note.
	StageEnrichment
	// StageClustering computes the embedding used for clustering.
	StageClustering
	// StageFinalMerge merges the outputs of the previous stages.
	StageFinalMerge
)

// AllStages returns every stage in processing order.
func AllStages() []Stage {
	return []Stage{StageRawExport, StageEnrichment, StageClustering, StageFinalMerge}
}

// String returns the persisted name of the stage.
func (s Stage) String() string {
	switch s {
	case StageRawExport:
		return "raw_export"
	case StageEnrichment:
		return "enrichment"
	case StageClustering:
		return "clustering"
	case StageFinalMerge:
		return "final_merge"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Valid reports whether s is one of the declared stages.
func (s Stage) Valid() bool {
	switch s {
	case StageRawExport, StageEnrichment, StageClustering, StageFinalMerge:
		return true
	default:
		return false
	}
}

// ParseStage converts a persisted stage name back into a Stage.
func ParseStage(name string) (Stage, error) {
	for _, s := range AllStages() {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage '%s'", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
