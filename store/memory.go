package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/maastricht-university/edmo-engagement/engagement"
)

// Memory keeps everything in process. Used by the CLI when no database is
// configured and by tests.
type Memory struct {
	mu    sync.RWMutex
	ticks []engagement.Tick
	live  map[string]engagement.LiveState
}

func NewMemory() *Memory {
	return &Memory{live: map[string]engagement.LiveState{}}
}

func (m *Memory) AppendTick(_ context.Context, t engagement.Tick) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.ticks = append(m.ticks, t)
	m.mu.Unlock()
	return t.ID, nil
}

func (m *Memory) UpsertLiveState(_ context.Context, s engagement.LiveState) error {
	m.mu.Lock()
	m.live[liveKey(s.SubjectID, s.CourseID)] = s
	m.mu.Unlock()
	return nil
}

func (m *Memory) EndMonitoring(_ context.Context, subjectID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := liveKey(subjectID, courseID)
	if s, ok := m.live[k]; ok {
		s.IsMonitoring = false
		m.live[k] = s
	}
	return nil
}

// Ticks returns up to limit of the subject's most recent ticks in append
// order; limit <= 0 returns all of them.
func (m *Memory) Ticks(_ context.Context, subjectID string, limit int) ([]engagement.Tick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engagement.Tick
	for _, t := range m.ticks {
		if t.SubjectID == subjectID {
			out = append(out, t)
		}
	}
	return lastN(out, limit), nil
}

// LiveState returns the projection for a subject/course pair.
func (m *Memory) LiveState(_ context.Context, subjectID, courseID string) (engagement.LiveState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.live[liveKey(subjectID, courseID)]
	return s, ok, nil
}
