package engagement

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// SessionBundle is the archived record of one finished monitoring session.
type SessionBundle struct {
	SessionID  string    `json:"session_id"`
	SubjectID  string    `json:"subject_id"`
	CourseID   string    `json:"course_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	State      State     `json:"final_state"`
	Ticks      []Tick    `json:"ticks"`
}

func mkSessionDir(outputsRoot, subjectID string, at time.Time) (string, string, error) {
	sid := "session_" + subjectID + "_" + at.Format("20060102-150405")
	dir := filepath.Join(outputsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

func writeJSONZst(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// ReadArchive decodes a ticks.json.zst file written by a finished session.
func ReadArchive(path string) (SessionBundle, error) {
	var b SessionBundle
	f, err := os.Open(path)
	if err != nil {
		return b, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return b, err
	}
	defer zr.Close()
	err = json.NewDecoder(zr).Decode(&b)
	return b, err
}

// persist writes the bundle under outputsRoot and returns the archive path.
func persist(outputsRoot string, b SessionBundle) (string, error) {
	_, outDir, err := mkSessionDir(outputsRoot, b.SubjectID, b.StartedAt)
	if err != nil {
		return "", err
	}

	path := filepath.Join(outDir, "ticks.json.zst")
	if err := writeJSONZst(path, b); err != nil {
		return "", err
	}
	return path, nil
}
