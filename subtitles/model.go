package subtitles

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Downloader fetches a URL into a local file.
type Downloader interface {
	Download(ctx context.Context, url, dst string) (int64, error)
}

// ModelCache installs recognizer models under Dir. A model counts as
// installed when Dir/<name> exists.
type ModelCache struct {
	Dir     string
	BaseURL string
	HTTP    Downloader
	Log     logrus.FieldLogger

	group singleflight.Group
}

// Path returns where the named model lives once installed.
func (m *ModelCache) Path(name string) string { return filepath.Join(m.Dir, name) }

// Ensure installs the named model if it is missing and returns its path.
// Concurrent callers for the same model share one download.
func (m *ModelCache) Ensure(ctx context.Context, name string) (string, error) {
	path := m.Path(name)
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return path, nil
	}

	_, err, _ := m.group.Do(name, func() (any, error) {
		if st, err := os.Stat(path); err == nil && st.IsDir() {
			return nil, nil
		}
		return nil, m.install(ctx, name)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (m *ModelCache) install(ctx context.Context, name string) error {
	log := m.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return err
	}

	url := strings.TrimRight(m.BaseURL, "/") + "/" + name + ".zip"
	zipPath := filepath.Join(m.Dir, name+".zip")
	log.WithFields(logrus.Fields{"model": name, "url": url}).Info("downloading recognizer model")

	n, err := m.HTTP.Download(ctx, url, zipPath)
	if err != nil {
		return fmt.Errorf("model %s: %w", name, err)
	}
	defer os.Remove(zipPath)

	if err := unzip(zipPath, m.Dir); err != nil {
		return fmt.Errorf("model %s unpack: %w", name, err)
	}
	if st, err := os.Stat(m.Path(name)); err != nil || !st.IsDir() {
		return fmt.Errorf("model %s: archive did not contain %s/", name, name)
	}
	log.WithFields(logrus.Fields{"model": name, "bytes": n}).Info("recognizer model installed")
	return nil
}

// unzip extracts every entry of src below dst, rejecting entries that would
// escape it.
func unzip(src, dst string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer zr.Close()

	root, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		target := filepath.Join(root, f.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
