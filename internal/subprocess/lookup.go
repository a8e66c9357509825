package subprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LookupExecutable resolves program the way the handle will launch it. A
// program containing a path separator is taken relative to dir; a bare name
// is searched in PATH, honoring a PATH entry in env. Every failure wraps
// ErrToolNotFound.
func LookupExecutable(program, dir string, env map[string]string) (string, error) {
	if program == "" {
		return "", fmt.Errorf("%w: empty program name", ErrToolNotFound)
	}

	if strings.ContainsRune(program, filepath.Separator) || strings.ContainsRune(program, '/') {
		candidate := program
		if !filepath.IsAbs(candidate) && dir != "" {
			candidate = filepath.Join(dir, candidate)
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrToolNotFound, program, err)
		}
		if err := checkExecutable(abs); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrToolNotFound, program, err)
		}
		return abs, nil
	}

	pathEnv := os.Getenv("PATH")
	if p, ok := env["PATH"]; ok {
		pathEnv = p
	}

	for _, d := range filepath.SplitList(pathEnv) {
		if d == "" {
			d = "."
		}
		candidate := filepath.Join(d, program)
		if checkExecutable(candidate) == nil {
			if abs, err := filepath.Abs(candidate); err == nil {
				return abs, nil
			}
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s not found in PATH", ErrToolNotFound, program)
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
