// Package engagement runs per-subject monitoring sessions that sample the
// signal sources on a fixed period, score each reading and persist the
// resulting ticks.
package engagement

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-engagement/signals"
)

type Config struct {
	Period   time.Duration
	Duration time.Duration
	// SourceTimeout bounds one Sample call; zero means no bound.
	SourceTimeout time.Duration
	// ArchiveDir receives the per-session tick archive; "" disables it.
	ArchiveDir string
	// Archived is called with the archive path once a session's archive is
	// written. It runs on the session goroutine before the session goes Idle.
	Archived func(subjectID, path string)
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = 2 * time.Second
	}
	if c.Duration <= 0 {
		c.Duration = 300 * time.Second
	}
	return c
}

// SourceFactory builds the source set for one session.
type SourceFactory func(subjectID string) []signals.Source

// Monitor is the registry of monitoring sessions keyed by subject ID. At
// most one session per subject is active at a time.
type Monitor struct {
	cfg     Config
	store   Store
	sources SourceFactory
	log     logrus.FieldLogger
	now     func() time.Time

	mu     sync.Mutex
	active map[string]*session
	recent map[string]*session
	closed bool
}

func NewMonitor(c Config, st Store, sources SourceFactory, log logrus.FieldLogger) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if sources == nil {
		sources = func(string) []signals.Source { return signals.SyntheticSet(0) }
	}
	return &Monitor{
		cfg:     c.withDefaults(),
		store:   st,
		sources: sources,
		log:     log,
		now:     time.Now,
		active:  map[string]*session{},
		recent:  map[string]*session{},
	}
}

type session struct {
	id      string
	subject string
	course  string
	started time.Time
	set     signals.Set

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu    sync.RWMutex
	state State
	ticks []Tick
}

func (s *session) getState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// transition moves the session from one state to another and reports
// whether it was in from.
func (s *session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *session) append(t Tick) {
	s.mu.Lock()
	s.ticks = append(s.ticks, t)
	s.mu.Unlock()
}

func (s *session) snapshot() []Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tick, len(s.ticks))
	copy(out, s.ticks)
	return out
}

func (s *session) requestStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *session) stopRequested() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Start launches a monitoring session for subjectID and returns at once.
// courseID may be empty, in which case no live state is maintained.
func (m *Monitor) Start(subjectID, courseID string) error {
	if subjectID == "" {
		return ErrInvalidSubject
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if prev, ok := m.active[subjectID]; ok {
		if prev.getState() == StateRunning {
			return ErrAlreadyRunning
		}
		return ErrStopping
	}

	log := m.log.WithFields(logrus.Fields{"subject": subjectID, "course": courseID})
	s := &session{
		id:      uuid.NewString(),
		subject: subjectID,
		course:  courseID,
		started: m.now(),
		set: signals.Set{
			Sources: m.sources(subjectID),
			Timeout: m.cfg.SourceTimeout,
			Log:     log,
		},
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		state: StateRunning,
	}
	m.active[subjectID] = s

	log.WithField("session", s.id).Info("monitoring started")
	go m.run(s, log)
	return nil
}

// Stop asks the subject's session to end. The loop notices within one
// period. Stopping an unknown or already stopping subject is a no-op.
func (m *Monitor) Stop(subjectID string) error {
	if subjectID == "" {
		return ErrInvalidSubject
	}
	m.mu.Lock()
	s, ok := m.active[subjectID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	s.transition(StateRunning, StateStopping)
	s.requestStop()
	return nil
}

// Wait blocks until the subject's active session, if any, has exited.
func (m *Monitor) Wait(subjectID string) {
	m.mu.Lock()
	s, ok := m.active[subjectID]
	m.mu.Unlock()
	if ok {
		<-s.done
	}
}

// State reports the subject's session state; subjects with no active
// session are Idle.
func (m *Monitor) State(subjectID string) State {
	m.mu.Lock()
	s, ok := m.active[subjectID]
	m.mu.Unlock()
	if !ok {
		return StateIdle
	}
	return s.getState()
}

func (m *Monitor) lookup(subjectID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.active[subjectID]; ok {
		return s
	}
	return m.recent[subjectID]
}

// Latest returns the newest tick of the subject's current or most recent
// session.
func (m *Monitor) Latest(subjectID string) (Tick, bool) {
	s := m.lookup(subjectID)
	if s == nil {
		return Tick{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.ticks) == 0 {
		return Tick{}, false
	}
	return s.ticks[len(s.ticks)-1], true
}

// All returns a copy of every tick of the subject's current or most recent
// session, oldest first.
func (m *Monitor) All(subjectID string) []Tick {
	s := m.lookup(subjectID)
	if s == nil {
		return nil
	}
	return s.snapshot()
}

// Subjects lists the subjects with an active session.
func (m *Monitor) Subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for id := range m.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close stops every session, waits for them to exit and rejects further
// starts.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.active))
	for _, s := range m.active {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.transition(StateRunning, StateStopping)
		s.requestStop()
	}
	for _, s := range sessions {
		<-s.done
	}
}

func (m *Monitor) run(s *session, log logrus.FieldLogger) {
	defer close(s.done)
	defer m.finish(s, log)

	ctx := context.Background()
	deadline := s.started.Add(m.cfg.Duration)
	ticker := time.NewTicker(m.cfg.Period)
	defer ticker.Stop()

	for {
		if s.stopRequested() || !m.now().Before(deadline) {
			return
		}
		if err := m.iterate(ctx, s, log); err != nil {
			log.WithError(err).Error("monitoring iteration failed")
			s.setState(StateFaulted)
			return
		}
		select {
		case <-s.stop:
		case <-ticker.C:
		}
	}
}

func (m *Monitor) iterate(ctx context.Context, s *session, log logrus.FieldLogger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panic: %v", r)
		}
	}()

	reading := s.set.SampleAll(ctx)
	focus, frustration := Scores(reading)
	raw, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("encode observations: %w", err)
	}

	t := Tick{
		ID:               uuid.NewString(),
		SubjectID:        s.subject,
		CourseID:         s.course,
		Timestamp:        m.now().UTC(),
		FocusScore:       focus,
		FrustrationScore: frustration,
		RawObservations:  raw,
	}
	id, err := m.store.AppendTick(ctx, t)
	if err != nil {
		return fmt.Errorf("append tick: %w", err)
	}
	if id != "" {
		t.ID = id
	}
	s.append(t)

	if s.course == "" {
		return nil
	}
	err = m.store.UpsertLiveState(ctx, LiveState{
		SubjectID:        s.subject,
		CourseID:         s.course,
		LatestFocusScore: focus,
		FrustrationLevel: frustration,
		LastUpdated:      t.Timestamp,
		IsMonitoring:     true,
	})
	if err != nil {
		log.WithError(err).Warn("live state update failed")
	}
	return nil
}

func (m *Monitor) finish(s *session, log logrus.FieldLogger) {
	if r := recover(); r != nil {
		log.WithField("panic", r).Error("monitoring loop panicked")
		s.setState(StateFaulted)
	}
	final := s.getState()
	ctx := context.Background()

	if s.course != "" {
		if err := m.store.EndMonitoring(ctx, s.subject, s.course); err != nil {
			log.WithError(err).Warn("clearing monitoring flag failed")
		}
	}

	ticks := s.snapshot()
	if m.cfg.ArchiveDir != "" && len(ticks) > 0 {
		path, err := persist(m.cfg.ArchiveDir, SessionBundle{
			SessionID:  s.id,
			SubjectID:  s.subject,
			CourseID:   s.course,
			StartedAt:  s.started,
			FinishedAt: m.now(),
			State:      final,
			Ticks:      ticks,
		})
		if err != nil {
			log.WithError(err).Warn("session archive failed")
		} else {
			log.WithField("archive", path).Debug("session archived")
			if m.cfg.Archived != nil {
				m.cfg.Archived(s.subject, path)
			}
		}
	}

	m.mu.Lock()
	delete(m.active, s.subject)
	m.recent[s.subject] = s
	m.mu.Unlock()
	s.setState(StateIdle)

	log.WithFields(logrus.Fields{"ticks": len(ticks), "final_state": final}).Info("monitoring ended")
}
