package media

import "os"

// TempPath reserves a unique file in dir named after pattern (see
// os.CreateTemp) and returns its path. The file is left in place, empty, so
// concurrent jobs never share an intermediate file; the caller removes it.
func TempPath(dir, pattern string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
