// Package covers finds cover images that need resizing.
package covers

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

const (
	maxDepth = 3
	maxFiles = 5000
)

var skipDirs = map[string]bool{
	".git":        true,
	".hg":         true,
	"__pycache__": true,
	".direnv":     true,
}

// Image is a candidate cover. Width and Height are zero when the format
// could not be decoded.
type Image struct {
	Path   string
	Rel    string
	Width  int
	Height int
}

func (i Image) KnownSize() bool {
	return i.Width > 0 && i.Height > 0
}

type Scanner struct {
	patterns []glob.Glob
	width    int
	height   int
}

// NewScanner compiles patterns, matched case-insensitively against base
// names. Images at most width x height are not eligible.
func NewScanner(patterns []string, width, height int) (*Scanner, error) {
	s := &Scanner{width: width, height: height}
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("compiling cover pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, g)
	}
	return s, nil
}

func (s *Scanner) Match(name string) bool {
	name = strings.ToLower(filepath.Base(name))
	for _, g := range s.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Eligible reports whether img should be resized. Images of unknown size
// are always eligible.
func (s *Scanner) Eligible(img Image) bool {
	if !img.KnownSize() {
		return true
	}
	return img.Width > s.width || img.Height > s.height
}

// Scan walks dir and returns the eligible images in lexical order. Rel is
// relative to base, which is normally the working directory.
func (s *Scanner) Scan(base, dir string) ([]Image, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cover directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cover directory %s is not a directory", dir)
	}

	var images []Image
	fileCount := 0
	baseDepth := strings.Count(filepath.Clean(dir), string(filepath.Separator))

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return fs.SkipDir
			}
			depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - baseDepth
			if depth > maxDepth {
				return fs.SkipDir
			}
			return nil
		}

		fileCount++
		if fileCount > maxFiles {
			return fs.SkipAll
		}

		if !d.Type().IsRegular() || !s.Match(path) {
			return nil
		}

		img := Image{Path: path, Rel: path}
		if rel, err := filepath.Rel(base, path); err == nil {
			img.Rel = rel
		}
		img.Width, img.Height = decodeSize(path)

		if s.Eligible(img) {
			images = append(images, img)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return images, nil
}

func decodeSize(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
