package model

import "fmt"

// StageStatus is the lifecycle state of one stage.
type StageStatus int

const (
	StatusNotStarted StageStatus = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
)

// String returns the persisted name of the status.
func (s StageStatus) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("StageStatus(%d)", int(s))
	}
}

// ParseStageStatus converts a persisted status name back into a StageStatus.
func ParseStageStatus(name string) (StageStatus, error) {
	switch name {
	case "not_started":
		return StatusNotStarted, nil
	case "in_progress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	default:
		return 0, fmt.Errorf("unknown stage status '%s'", name)
	}
}

// CanStart reports whether a stage in this status may transition to IN_PROGRESS.
// IN_PROGRESS itself is accepted so that starting twice is a no-op.
func (s StageStatus) CanStart() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusFailed:
		return true
	case StatusCompleted:
		return false
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s StageStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// MarshalText implements encoding.TextMarshaler.
func (s StageStatus) MarshalText() ([]byte, error) {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusFailed:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("cannot marshal invalid stage status %d", int(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StageStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseStageStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
