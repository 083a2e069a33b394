package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/edmo-engagement/logging"
	"github.com/maastricht-university/edmo-engagement/signals"
)

type fakeStore struct {
	mu        sync.Mutex
	ticks     []Tick
	live      map[string]LiveState
	ended     []string
	appendErr error
	upsertErr error
	// failAfter makes AppendTick fail once that many ticks are stored.
	failAfter int
}

func newFakeStore() *fakeStore { return &fakeStore{live: map[string]LiveState{}} }

func (f *fakeStore) AppendTick(_ context.Context, t Tick) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return "", f.appendErr
	}
	if f.failAfter > 0 && len(f.ticks) >= f.failAfter {
		return "", errors.New("disk full")
	}
	f.ticks = append(f.ticks, t)
	return t.ID, nil
}

func (f *fakeStore) UpsertLiveState(_ context.Context, s LiveState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.live[s.SubjectID+"/"+s.CourseID] = s
	return nil
}

func (f *fakeStore) EndMonitoring(_ context.Context, subject, course string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, subject+"/"+course)
	if s, ok := f.live[subject+"/"+course]; ok {
		s.IsMonitoring = false
		f.live[subject+"/"+course] = s
	}
	return nil
}

func (f *fakeStore) tickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticks)
}

func quietLog() logrus.FieldLogger { return logging.Discard() }

func synthetic(string) []signals.Source { return signals.SyntheticSet(11) }

func fastConfig() Config {
	return Config{Period: 5 * time.Millisecond, Duration: time.Minute, SourceTimeout: 50 * time.Millisecond}
}

func TestFocusAndFrustration(t *testing.T) {
	face := signals.Face{
		Emotions:  signals.Emotions{Happy: 0.5, Sad: 0.1, Angry: 0.1, Surprised: 0.05, Disgusted: 0.05, Neutral: 0.2},
		Attention: 0.6,
	}
	voice := signals.Voice{Tone: 0.3, Volume: 0.5}
	kb := signals.Keyboard{Activity: 0.5, TypingSpeed: 0.5}
	mouse := signals.Mouse{Movement: 0.4, Clicks: 2}

	assert.InDelta(t, 0.3+0.1+0.04+0.02+0.05, Focus(face, voice, kb, mouse), 1e-9)
	assert.InDelta(t, 0.03+0.02+0.005+0.06+0.05+0.04, Frustration(face, voice, kb, mouse), 1e-9)
}

func TestFocusForFixedReading(t *testing.T) {
	face := signals.Face{Emotions: signals.Emotions{Neutral: 1}, Attention: 0.6}
	voice := signals.Voice{Volume: 0.7}
	kb := signals.Keyboard{Activity: 0.5}
	mouse := signals.Mouse{Movement: 0.4, Clicks: 3}

	// 0.5*0.6 + 0.2*0.5 + 0.1*0.4 + 0.1*0.3 + 0.1*0.7
	assert.InDelta(t, 0.54, Focus(face, voice, kb, mouse), 1e-12)
}

func TestScoresAreClamped(t *testing.T) {
	maxed := signals.Face{Emotions: signals.Emotions{Angry: 1}, Attention: 1}
	v := signals.Voice{Tone: 1, Volume: 1}
	k := signals.Keyboard{Activity: 1, TypingSpeed: 1}
	m := signals.Mouse{Movement: 1, Clicks: 50}
	assert.Equal(t, 1.0, Focus(maxed, v, k, m))
	assert.LessOrEqual(t, Frustration(maxed, v, k, m), 1.0)

	var zero signals.Reading
	focus, frustration := Scores(zero)
	assert.Equal(t, 0.0, focus)
	assert.Equal(t, 0.0, frustration)
}

func TestScoresStayInRangeForSyntheticReadings(t *testing.T) {
	set := signals.Set{Sources: signals.SyntheticSet(5), Log: quietLog()}
	for i := 0; i < 200; i++ {
		f, fr := Scores(set.SampleAll(context.Background()))
		assert.True(t, f >= 0 && f <= 1)
		assert.True(t, fr >= 0 && fr <= 1)
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	st := newFakeStore()
	m := NewMonitor(fastConfig(), st, synthetic, quietLog())
	defer m.Close()

	require.NoError(t, m.Start("s1", "c1"))
	assert.ErrorIs(t, m.Start("s1", "c1"), ErrAlreadyRunning)
	assert.ErrorIs(t, m.Start("", "c1"), ErrInvalidSubject)
	assert.Equal(t, StateRunning, m.State("s1"))
	assert.Equal(t, []string{"s1"}, m.Subjects())
}

func TestStopEndsSessionAndKeepsTicks(t *testing.T) {
	st := newFakeStore()
	m := NewMonitor(fastConfig(), st, synthetic, quietLog())

	require.NoError(t, m.Start("s1", "c1"))
	require.Eventually(t, func() bool { return st.tickCount() >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop("s1"))
	require.NoError(t, m.Stop("s1"), "stop is idempotent")
	m.Wait("s1")

	assert.Equal(t, StateIdle, m.State("s1"))
	n := st.tickCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, st.tickCount(), "no ticks after stop")

	all := m.All("s1")
	require.Len(t, all, n)
	last, ok := m.Latest("s1")
	require.True(t, ok)
	assert.Equal(t, all[len(all)-1], last)

	for _, tk := range all {
		assert.Equal(t, "s1", tk.SubjectID)
		assert.Equal(t, "c1", tk.CourseID)
		assert.True(t, tk.FocusScore >= 0 && tk.FocusScore <= 1)
		var r signals.Reading
		require.NoError(t, json.Unmarshal(tk.RawObservations, &r))
		assert.True(t, r.Face.Available)
	}

	live := st.live["s1/c1"]
	assert.False(t, live.IsMonitoring)
	assert.Equal(t, last.FocusScore, live.LatestFocusScore)
	assert.Equal(t, []string{"s1/c1"}, st.ended)

	require.NoError(t, m.Start("s1", "c1"), "restart after exit")
	m.Close()
}

func TestNoCourseSkipsLiveState(t *testing.T) {
	st := newFakeStore()
	m := NewMonitor(fastConfig(), st, synthetic, quietLog())
	require.NoError(t, m.Start("solo", ""))
	require.Eventually(t, func() bool { return st.tickCount() >= 1 }, time.Second, 5*time.Millisecond)
	m.Close()

	assert.Empty(t, st.live)
	assert.Empty(t, st.ended)
}

func TestDurationBudgetEndsSession(t *testing.T) {
	st := newFakeStore()
	c := fastConfig()
	c.Duration = 30 * time.Millisecond
	m := NewMonitor(c, st, synthetic, quietLog())

	require.NoError(t, m.Start("s1", ""))
	m.Wait("s1")
	assert.Equal(t, StateIdle, m.State("s1"))
	assert.NotZero(t, st.tickCount())
}

func TestAppendFailureFaultsSession(t *testing.T) {
	st := newFakeStore()
	st.appendErr = errors.New("db down")
	m := NewMonitor(fastConfig(), st, synthetic, quietLog())

	require.NoError(t, m.Start("s1", "c1"))
	m.Wait("s1")

	assert.Equal(t, StateIdle, m.State("s1"))
	assert.Empty(t, m.All("s1"))
	_, ok := m.Latest("s1")
	assert.False(t, ok)
}

func TestLiveStateFailureIsNotFatal(t *testing.T) {
	st := newFakeStore()
	st.upsertErr = errors.New("timeout")
	m := NewMonitor(fastConfig(), st, synthetic, quietLog())
	defer m.Close()

	require.NoError(t, m.Start("s1", "c1"))
	require.Eventually(t, func() bool { return st.tickCount() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateRunning, m.State("s1"))
}

type brokenSource struct{}

func (brokenSource) Kind() signals.Kind { return signals.KindFace }
func (brokenSource) Sample(context.Context) (signals.Observation, error) {
	return signals.Observation{}, errors.New("camera busy")
}

func TestUnavailableSourceStillProducesTicks(t *testing.T) {
	st := newFakeStore()
	m := NewMonitor(fastConfig(), st, func(string) []signals.Source {
		return []signals.Source{brokenSource{}}
	}, quietLog())

	require.NoError(t, m.Start("s1", ""))
	require.Eventually(t, func() bool { return st.tickCount() >= 1 }, time.Second, 5*time.Millisecond)
	m.Close()

	tk, ok := m.Latest("s1")
	require.True(t, ok)
	assert.Equal(t, 0.0, tk.FocusScore)
	assert.Equal(t, 0.0, tk.FrustrationScore)
}

func TestCloseRejectsStart(t *testing.T) {
	m := NewMonitor(fastConfig(), newFakeStore(), synthetic, quietLog())
	m.Close()
	assert.ErrorIs(t, m.Start("s1", ""), ErrClosed)
}

func TestSessionArchive(t *testing.T) {
	dir := t.TempDir()
	st := newFakeStore()
	c := fastConfig()
	c.ArchiveDir = dir
	m := NewMonitor(c, st, synthetic, quietLog())

	require.NoError(t, m.Start("s9", "c2"))
	require.Eventually(t, func() bool { return st.tickCount() >= 2 }, time.Second, 5*time.Millisecond)
	m.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "session_s9_*", "ticks.json.zst"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	b, err := ReadArchive(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "s9", b.SubjectID)
	assert.Equal(t, "c2", b.CourseID)
	assert.Equal(t, StateStopping, b.State)
	all := m.All("s9")
	require.Len(t, b.Ticks, len(all))
	for i := range all {
		assert.Equal(t, all[i].ID, b.Ticks[i].ID)
		assert.Equal(t, all[i].FocusScore, b.Ticks[i].FocusScore)
		assert.True(t, all[i].Timestamp.Equal(b.Ticks[i].Timestamp))
	}

	_, err = os.Stat(matches[0])
	require.NoError(t, err)
}

// gatedSource blocks in Sample until release is closed.
type gatedSource struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedSource() *gatedSource {
	return &gatedSource{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSource) Kind() signals.Kind { return signals.KindMouse }

func (g *gatedSource) Sample(context.Context) (signals.Observation, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return signals.Observation{Kind: signals.KindMouse, Mouse: &signals.Mouse{Movement: 0.2}}, nil
}

func TestRestartWhileStoppingIsRejected(t *testing.T) {
	gate := newGatedSource()
	first := true
	sources := func(string) []signals.Source {
		if first {
			first = false
			return []signals.Source{gate}
		}
		return signals.SyntheticSet(3)
	}
	c := fastConfig()
	c.SourceTimeout = 0
	m := NewMonitor(c, newFakeStore(), sources, quietLog())
	defer m.Close()

	require.NoError(t, m.Start("s1", "c1"))
	<-gate.entered
	require.NoError(t, m.Stop("s1"))
	assert.Equal(t, StateStopping, m.State("s1"))
	assert.ErrorIs(t, m.Start("s1", "c1"), ErrStopping)

	close(gate.release)
	m.Wait("s1")
	assert.Equal(t, StateIdle, m.State("s1"))
	require.NoError(t, m.Start("s1", "c1"))
	assert.Equal(t, StateRunning, m.State("s1"))
}

func TestFaultedSessionIsArchivedAsFaulted(t *testing.T) {
	dir := t.TempDir()
	st := newFakeStore()
	st.failAfter = 2
	c := fastConfig()
	c.ArchiveDir = dir
	var archived []string
	c.Archived = func(subject, path string) { archived = append(archived, subject+"="+path) }
	m := NewMonitor(c, st, synthetic, quietLog())

	require.NoError(t, m.Start("s4", "c1"))
	m.Wait("s4")

	matches, err := filepath.Glob(filepath.Join(dir, "session_s4_*", "ticks.json.zst"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	b, err := ReadArchive(matches[0])
	require.NoError(t, err)
	assert.Equal(t, StateFaulted, b.State)
	assert.Len(t, b.Ticks, 2)
	assert.Equal(t, []string{"s4=" + matches[0]}, archived)
}

func TestStopDoesNotMaskFault(t *testing.T) {
	s := &session{state: StateFaulted, stop: make(chan struct{})}
	assert.False(t, s.transition(StateRunning, StateStopping))
	assert.Equal(t, StateFaulted, s.getState())

	s.state = StateRunning
	assert.True(t, s.transition(StateRunning, StateStopping))
	assert.Equal(t, StateStopping, s.getState())
}
