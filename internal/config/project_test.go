package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func makeProject(t *testing.T, dir string, entries ...string) {
	t.Helper()
	for _, e := range entries {
		path := filepath.Join(dir, e)
		if filepath.Ext(e) == "" && e != "makefile" && e != "Makefile" {
			if err := os.MkdirAll(path, 0755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestValidateWorkingDir(t *testing.T) {
	markers := []string{"makefile", "songs", "img"}

	tests := []struct {
		name        string
		entries     []string
		wantMissing string
		wantErr     bool
	}{
		{name: "complete", entries: []string{"makefile", "songs", "img"}},
		{name: "capitalized Makefile", entries: []string{"Makefile", "songs", "img"}},
		{name: "missing makefile", entries: []string{"songs", "img"}, wantErr: true, wantMissing: "makefile"},
		{name: "missing img", entries: []string{"makefile", "songs"}, wantErr: true, wantMissing: "img"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			makeProject(t, dir, tt.entries...)

			err := ValidateWorkingDir(dir, markers)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var wdErr *WorkingDirError
			if !errors.As(err, &wdErr) {
				t.Fatalf("expected WorkingDirError, got %v", err)
			}
			if wdErr.Missing != tt.wantMissing {
				t.Errorf("Missing = %q, want %q", wdErr.Missing, tt.wantMissing)
			}
		})
	}
}

func TestValidateWorkingDir_NotExist(t *testing.T) {
	err := ValidateWorkingDir(filepath.Join(t.TempDir(), "nope"), nil)

	var wdErr *WorkingDirError
	if !errors.As(err, &wdErr) {
		t.Fatalf("expected WorkingDirError, got %v", err)
	}
	if wdErr.Missing != "" {
		t.Errorf("Missing = %q, want empty", wdErr.Missing)
	}
}

func TestMissingMarkers(t *testing.T) {
	dir := t.TempDir()
	makeProject(t, dir, "songs")

	missing := MissingMarkers(dir, []string{"songbook.py", "songs", "utils"})
	if len(missing) != 2 || missing[0] != "songbook.py" || missing[1] != "utils" {
		t.Errorf("MissingMarkers = %v", missing)
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	makeProject(t, root, "makefile", "songs", "img")
	nested := filepath.Join(root, "songs", "a")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindProjectRoot(nested, []string{"makefile", "songs", "img"})
	if err != nil {
		t.Fatalf("FindProjectRoot: %v", err)
	}
	want, _ := filepath.Abs(root)
	if got != want {
		t.Errorf("FindProjectRoot = %q, want %q", got, want)
	}
}

func TestResolveWorkingDir(t *testing.T) {
	configured := t.TempDir()
	cfg := Default()
	cfg.WorkingDir = configured

	got, err := ResolveWorkingDir("", cfg)
	if err != nil {
		t.Fatalf("ResolveWorkingDir: %v", err)
	}
	if got != configured {
		t.Errorf("ResolveWorkingDir = %q, want %q", got, configured)
	}

	override := t.TempDir()
	got, err = ResolveWorkingDir(override, cfg)
	if err != nil {
		t.Fatalf("ResolveWorkingDir: %v", err)
	}
	if got != override {
		t.Errorf("ResolveWorkingDir override = %q, want %q", got, override)
	}
}
