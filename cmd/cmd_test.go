package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/edmo-engagement/config"
	"github.com/maastricht-university/edmo-engagement/engagement"
	"github.com/maastricht-university/edmo-engagement/store"
)

func TestMonitorConfig(t *testing.T) {
	c := config.Monitor{Period: 2, Duration: 300, SourceTimeout: 500, Archive: true}
	mc := monitorConfig(c, "out")
	assert.Equal(t, 2*time.Second, mc.Period)
	assert.Equal(t, 5*time.Minute, mc.Duration)
	assert.Equal(t, 500*time.Millisecond, mc.SourceTimeout)
	assert.Equal(t, "out", mc.ArchiveDir)

	monitorOpts.duration = 30 * time.Second
	t.Cleanup(func() { monitorOpts.duration = 0 })
	c.Archive = false
	mc = monitorConfig(c, "out")
	assert.Equal(t, 30*time.Second, mc.Duration)
	assert.Empty(t, mc.ArchiveDir)
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\npaths:\n  outputs: /tmp/a\n"), 0o644))

	v.Set("config", path)
	v.Set("outputs", "/tmp/b")
	t.Cleanup(func() {
		v.Set("config", "")
		v.Set("outputs", "")
	})

	c, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/b", c.Paths.Outputs)
	assert.Equal(t, []string{"gemini", "remote", "espeak"}, c.Dubbing.Providers)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0o644))
	v.Set("config", path)
	t.Cleanup(func() { v.Set("config", "") })

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestDistinctBases(t *testing.T) {
	require.NoError(t, distinctBases([]string{"a/week1.mp4", "a/week2.mp4", "b/week3.mov"}))

	err := distinctBases([]string{"a/lecture.mp4", "b/lecture.mp4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b/lecture.mp4")

	assert.Error(t, distinctBases([]string{"x/talk.mp4", "y/talk.mkv"}), "extension does not disambiguate outputs")
}

func TestPrintHistory(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := m.AppendTick(ctx, engagement.Tick{SubjectID: "s1", CourseID: "c1", Timestamp: at.Add(time.Duration(i) * time.Second), FocusScore: float64(i) / 10})
		require.NoError(t, err)
	}
	require.NoError(t, m.UpsertLiveState(ctx, engagement.LiveState{SubjectID: "s1", CourseID: "c1", LatestFocusScore: 0.2, LastUpdated: at}))

	var out bytes.Buffer
	require.NoError(t, printHistory(ctx, &out, m, "s1", "c1", 2))
	assert.Equal(t,
		"2026-05-04T10:00:01Z\tc1\tfocus=0.100\tfrustration=0.000\n"+
			"2026-05-04T10:00:02Z\tc1\tfocus=0.200\tfrustration=0.000\n"+
			"live s1/c1: focus=0.200 frustration=0.000 monitoring=false updated=2026-05-04T10:00:00Z\n",
		out.String())

	out.Reset()
	require.NoError(t, printHistory(ctx, &out, m, "s1", "c9", 0))
	assert.Contains(t, out.String(), "live s1/c9: none")
}

type recordingUploader struct {
	kinds []string
	paths []string
	err   error
}

func (u *recordingUploader) Upload(_ context.Context, kind, local string) (string, error) {
	u.kinds = append(u.kinds, kind)
	u.paths = append(u.paths, local)
	return kind + "/" + filepath.Base(local), u.err
}

func TestPublishArchive(t *testing.T) {
	u := &recordingUploader{}
	publishArchive(u)("s1", "/tmp/out/s1_20260504.json")
	assert.Equal(t, []string{"sessions/s1"}, u.kinds)
	assert.Equal(t, []string{"/tmp/out/s1_20260504.json"}, u.paths)

	u.err = errors.New("bucket gone")
	assert.NotPanics(t, func() { publishArchive(u)("s2", "/tmp/out/s2.json") })
	assert.Len(t, u.kinds, 2)
}
