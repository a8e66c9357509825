package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkingDirError reports a working directory that lacks the structure the
// build tool expects.
type WorkingDirError struct {
	Dir     string
	Missing string
}

func (e *WorkingDirError) Error() string {
	if e.Missing == "" {
		return fmt.Sprintf("working directory %s does not exist", e.Dir)
	}
	return fmt.Sprintf("working directory %s: %s not found", e.Dir, e.Missing)
}

// ValidateWorkingDir checks that dir exists and contains every marker. The
// first missing marker is reported.
func ValidateWorkingDir(dir string, markers []string) error {
	if !isDir(dir) {
		return &WorkingDirError{Dir: dir}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading working directory %s: %w", dir, err)
	}

	for _, marker := range markers {
		if !hasEntry(entries, marker) {
			return &WorkingDirError{Dir: dir, Missing: marker}
		}
	}
	return nil
}

// MissingMarkers returns every marker absent from dir, in order.
func MissingMarkers(dir string, markers []string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return append([]string(nil), markers...)
	}

	var missing []string
	for _, marker := range markers {
		if !hasEntry(entries, marker) {
			missing = append(missing, marker)
		}
	}
	return missing
}

// hasEntry matches case-insensitively so that Makefile satisfies makefile.
func hasEntry(entries []os.DirEntry, name string) bool {
	for _, e := range entries {
		if strings.EqualFold(e.Name(), name) {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up from start looking for a directory that holds a
// project config or all of markers.
func FindProjectRoot(start string, markers []string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", start, err)
	}
	if !isDir(dir) {
		dir = filepath.Dir(dir)
	}

	for {
		if ProjectConfigPath(dir) != "" {
			return dir, nil
		}
		if len(markers) > 0 && ValidateWorkingDir(dir, markers) == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no songbook project found above %s", start)
}

// ResolveWorkingDir picks the working directory: an explicit override, the
// configured directory when it exists, the project root above the current
// directory, or the current directory itself.
func ResolveWorkingDir(override string, cfg *Config) (string, error) {
	if override != "" {
		return filepath.Abs(ExpandPath(override))
	}

	if cfg.WorkingDir != "" {
		configured := ExpandPath(cfg.WorkingDir)
		if isDir(configured) {
			return filepath.Abs(configured)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}

	if root, err := FindProjectRoot(cwd, cfg.Workdir.Required); err == nil {
		return root, nil
	}
	return cwd, nil
}
