package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CheckpointVersion is the document version written by this engine.
const CheckpointVersion = "1.0.0"

// StageProgress records the progress of one stage.
type StageProgress struct {
	Status StageStatus
	// Processed holds ids that completed successfully.
	Processed ItemSet
	// Failed holds ids that completed with an error.
	Failed ItemSet

	StartTime         *time.Time
	CompletionTime    *time.Time
	LastProcessedTime *time.Time

	// Error is set only when the whole stage was aborted.
	Error string
}

// NewStageProgress returns an empty NOT_STARTED progress record.
func NewStageProgress() *StageProgress {
	return &StageProgress{
		Status:    StatusNotStarted,
		Processed: NewItemSet(),
		Failed:    NewItemSet(),
	}
}

// IsSettled reports whether id is recorded in either set.
func (p *StageProgress) IsSettled(id ItemID) bool {
	return p.Processed.Has(id) || p.Failed.Has(id)
}

// SettledCount returns the number of settled ids.
func (p *StageProgress) SettledCount() int {
	return len(p.Processed) + len(p.Failed)
}

// Clone returns a deep copy.
func (p *StageProgress) Clone() *StageProgress {
	c := &StageProgress{
		Status:    p.Status,
		Processed: p.Processed.Clone(),
		Failed:    p.Failed.Clone(),
		Error:     p.Error,
	}
	c.StartTime = cloneTime(p.StartTime)
	c.CompletionTime = cloneTime(p.CompletionTime)
	c.LastProcessedTime = cloneTime(p.LastProcessedTime)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CheckpointMetadata is the whole persisted document of a pipeline run.
type CheckpointMetadata struct {
	Version     string
	TotalItems  int
	Stages      map[Stage]*StageProgress
	CreatedAt   time.Time
	LastUpdated time.Time
}

// NewCheckpointMetadata creates a document with every stage NOT_STARTED.
func NewCheckpointMetadata(totalItems int, now time.Time) *CheckpointMetadata {
	m := &CheckpointMetadata{
		Version:     CheckpointVersion,
		TotalItems:  totalItems,
		Stages:      make(map[Stage]*StageProgress, len(AllStages())),
		CreatedAt:   now,
		LastUpdated: now,
	}
	for _, s := range AllStages() {
		m.Stages[s] = NewStageProgress()
	}
	return m
}

// Stage returns the progress of s, creating an empty record if the document lacks one.
func (m *CheckpointMetadata) Stage(s Stage) *StageProgress {
	if m.Stages == nil {
		m.Stages = make(map[Stage]*StageProgress)
	}
	p, ok := m.Stages[s]
	if !ok {
		p = NewStageProgress()
		m.Stages[s] = p
	}
	return p
}

// Clone returns a deep copy. Stores hand out clones so callers never share state with them.
func (m *CheckpointMetadata) Clone() *CheckpointMetadata {
	c := &CheckpointMetadata{
		Version:     m.Version,
		TotalItems:  m.TotalItems,
		Stages:      make(map[Stage]*StageProgress, len(m.Stages)),
		CreatedAt:   m.CreatedAt,
		LastUpdated: m.LastUpdated,
	}
	for s, p := range m.Stages {
		c.Stages[s] = p.Clone()
	}
	return c
}

// Validate checks the structural invariants of the document.
func (m *CheckpointMetadata) Validate() error {
	if !strings.HasPrefix(m.Version, "1.") {
		return fmt.Errorf("unsupported checkpoint version '%s'", m.Version)
	}
	if m.TotalItems < 0 {
		return fmt.Errorf("totalItems must not be negative, got %d", m.TotalItems)
	}
	for s, p := range m.Stages {
		if !s.Valid() {
			return fmt.Errorf("invalid stage %d", int(s))
		}
		for id := range p.Processed {
			if p.Failed.Has(id) {
				return fmt.Errorf("stage '%s': item %s is recorded as both processed and failed", s, id)
			}
		}
	}
	return nil
}

type stageProgressJSON struct {
	Status            StageStatus `json:"status"`
	ProcessedNoteIDs  []string    `json:"processedNoteIds"`
	FailedNoteIDs     []string    `json:"failedNoteIds"`
	StartTime         *time.Time  `json:"startTime,omitempty"`
	CompletionTime    *time.Time  `json:"completionTime,omitempty"`
	LastProcessedTime *time.Time  `json:"lastProcessedTime,omitempty"`
	Error             *string     `json:"error,omitempty"`
}

type checkpointJSON struct {
	Version     string                       `json:"version"`
	TotalItems  int                          `json:"totalItems"`
	Stages      map[string]stageProgressJSON `json:"stages"`
	CreatedAt   time.Time                    `json:"createdAt"`
	LastUpdated time.Time                    `json:"lastUpdated"`
}

func encodeIDs(s ItemSet) []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, id := range sorted {
		out[i] = id.String()
	}
	return out
}

func decodeIDs(raw []string) (ItemSet, error) {
	s := make(ItemSet, len(raw))
	for _, r := range raw {
		id, err := ParseItemID(r)
		if err != nil {
			return nil, err
		}
		s[id] = struct{}{}
	}
	return s, nil
}

// MarshalJSON writes the checkpoint document layout. Id arrays are sorted numerically.
func (m CheckpointMetadata) MarshalJSON() ([]byte, error) {
	doc := checkpointJSON{
		Version:     m.Version,
		TotalItems:  m.TotalItems,
		Stages:      make(map[string]stageProgressJSON, len(m.Stages)),
		CreatedAt:   m.CreatedAt,
		LastUpdated: m.LastUpdated,
	}
	for s, p := range m.Stages {
		if !s.Valid() {
			return nil, fmt.Errorf("cannot marshal invalid stage %d", int(s))
		}
		sp := stageProgressJSON{
			Status:            p.Status,
			ProcessedNoteIDs:  encodeIDs(p.Processed),
			FailedNoteIDs:     encodeIDs(p.Failed),
			StartTime:         p.StartTime,
			CompletionTime:    p.CompletionTime,
			LastProcessedTime: p.LastProcessedTime,
		}
		if p.Error != "" {
			msg := p.Error
			sp.Error = &msg
		}
		doc.Stages[s.String()] = sp
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the checkpoint document layout. Unknown stage names or statuses are
// rejected and stages missing from the document are filled in as NOT_STARTED.
func (m *CheckpointMetadata) UnmarshalJSON(data []byte) error {
	var doc checkpointJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	out := CheckpointMetadata{
		Version:     doc.Version,
		TotalItems:  doc.TotalItems,
		Stages:      make(map[Stage]*StageProgress, len(AllStages())),
		CreatedAt:   doc.CreatedAt,
		LastUpdated: doc.LastUpdated,
	}
	for name, sp := range doc.Stages {
		stage, err := ParseStage(name)
		if err != nil {
			return err
		}
		processed, err := decodeIDs(sp.ProcessedNoteIDs)
		if err != nil {
			return fmt.Errorf("stage '%s' processedNoteIds: %w", name, err)
		}
		failed, err := decodeIDs(sp.FailedNoteIDs)
		if err != nil {
			return fmt.Errorf("stage '%s' failedNoteIds: %w", name, err)
		}
		p := &StageProgress{
			Status:            sp.Status,
			Processed:         processed,
			Failed:            failed,
			StartTime:         sp.StartTime,
			CompletionTime:    sp.CompletionTime,
			LastProcessedTime: sp.LastProcessedTime,
		}
		if sp.Error != nil {
			p.Error = *sp.Error
		}
		out.Stages[stage] = p
	}
	for _, s := range AllStages() {
		out.Stage(s)
	}
	*m = out
	return nil
}
