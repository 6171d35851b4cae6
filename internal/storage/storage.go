package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const tempPrefix = ".tmp-"

// maxSuffix bounds the numeric suffixes tried for a free name.
const maxSuffix = 1000

// Storage writes finished photos into an output directory.
type Storage struct {
	Dir string
	// Overwrite replaces existing files instead of picking a free name.
	Overwrite bool
}

// New creates a new Storage instance with the provided output directory.
func New(dir string) *Storage {
	if dir == "" {
		dir = "."
	}
	return &Storage{Dir: dir}
}

// Save writes data under name and returns the final path. Without Overwrite an
// existing file is kept and a numeric suffix is added: me_600x600-1.jpg. The
// file appears complete or not at all.
func (s *Storage) Save(name string, data []byte) (string, error) {
	name = filepath.Base(filepath.Clean(name))
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if len(data) == 0 {
		return "", errors.New("refusing to write an empty file")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure dir: %w", err)
	}

	tmpName, err := s.writeTemp(data)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpName)

	path := filepath.Join(s.Dir, name)
	if s.Overwrite {
		if err := os.Rename(tmpName, path); err != nil {
			return "", fmt.Errorf("rename temp to final: %w", err)
		}
		return path, nil
	}
	return publish(tmpName, path)
}

// writeTemp writes data to a synced temp file inside the output directory.
func (s *Storage) writeTemp(data []byte) (string, error) {
	tmp, err := os.CreateTemp(s.Dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, 0o644)
	}
	if err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return tmpName, nil
}

// publish links tmpName to the first free name derived from path. Linking
// fails when the name is taken, so a concurrent writer can't be clobbered.
// Filesystems without hard links fall back to a checked rename.
func publish(tmpName, path string) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	candidate := path
	for i := 1; i <= maxSuffix; i++ {
		err := os.Link(tmpName, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			if _, statErr := os.Lstat(candidate); errors.Is(statErr, fs.ErrNotExist) {
				if err := os.Rename(tmpName, candidate); err != nil {
					return "", fmt.Errorf("rename temp to final: %w", err)
				}
				return candidate, nil
			} else if statErr != nil {
				return "", fmt.Errorf("stat %s: %w", candidate, statErr)
			}
		}
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
	return "", fmt.Errorf("no free file name for %s", path)
}

// CleanTemp removes temp files left in the output directory by interrupted
// writes, if older than maxAge. It returns how many were removed.
func (s *Storage) CleanTemp(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.Dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
