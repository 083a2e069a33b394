package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Tick is one persisted sampling result. Ticks are append-only.
type Tick struct {
	ID               string          `json:"id"`
	SubjectID        string          `json:"subject_id"`
	CourseID         string          `json:"course_id,omitempty"` // "" when not tied to a course
	Timestamp        time.Time       `json:"timestamp"`
	FocusScore       float64         `json:"focus_score"`
	FrustrationScore float64         `json:"frustration_score"`
	RawObservations  json.RawMessage `json:"raw_observations"`
}

// LiveState is the latest-known engagement snapshot for a subject/course
// pair, overwritten by every tick of that pair.
type LiveState struct {
	SubjectID        string    `json:"subject_id"`
	CourseID         string    `json:"course_id"`
	LatestFocusScore float64   `json:"latest_focus_score"`
	FrustrationLevel float64   `json:"frustration_level"`
	LastUpdated      time.Time `json:"last_updated"`
	IsMonitoring     bool      `json:"is_monitoring"`
}

// Store persists ticks and the live projection. Each call must be atomic on
// its own; AppendTick and UpsertLiveState are not atomic with each other.
// Implementations must be safe for concurrent use.
type Store interface {
	AppendTick(ctx context.Context, t Tick) (string, error)
	UpsertLiveState(ctx context.Context, s LiveState) error
	// EndMonitoring clears IsMonitoring on the live projection, if any.
	EndMonitoring(ctx context.Context, subjectID, courseID string) error
}

// State of a monitoring session.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateFaulted  State = "faulted"
)

var (
	ErrAlreadyRunning = errors.New("monitoring already running for subject")
	ErrStopping       = errors.New("previous session for subject is still stopping")
	ErrInvalidSubject = errors.New("subject id is required")
	ErrClosed         = errors.New("monitor is closed")
)
