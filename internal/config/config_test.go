package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadPath_MissingFile(t *testing.T) {
	cfg, err := LoadPath(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadPath: %v", err)
	}
	if cfg.Tools.Compile.Program != "make" {
		t.Errorf("expected default compile program make, got %q", cfg.Tools.Compile.Program)
	}
}

func TestLoadPath_TOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songbook.toml")
	content := `
working_dir = "/srv/songbook"
remote = "https://example.org/songbook.git"

[tools.compile]
program = "gmake"

[tools.lint]
program = "./utils/check.sh"
args = ["songs"]
env = { LANG = "C" }

[covers]
size = "200x300"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadPath(path)
	if err != nil {
		t.Fatalf("LoadPath: %v", err)
	}

	if cfg.WorkingDir != "/srv/songbook" {
		t.Errorf("WorkingDir = %q", cfg.WorkingDir)
	}
	if cfg.Tools.Compile.Program != "gmake" {
		t.Errorf("compile program = %q, want gmake", cfg.Tools.Compile.Program)
	}
	if len(cfg.Tools.Compile.Args) != 1 || cfg.Tools.Compile.Args[0] != "{target}" {
		t.Errorf("compile args should keep default, got %v", cfg.Tools.Compile.Args)
	}
	if cfg.Tools.Lint.Env["LANG"] != "C" {
		t.Errorf("lint env = %v", cfg.Tools.Lint.Env)
	}
	if cfg.Tools.Clean.Program != "make" {
		t.Errorf("clean program should keep default, got %q", cfg.Tools.Clean.Program)
	}
	if cfg.Covers.Size != "200x300" {
		t.Errorf("covers size = %q", cfg.Covers.Size)
	}
	if cfg.Covers.Dir != "img" {
		t.Errorf("covers dir should keep default, got %q", cfg.Covers.Dir)
	}
}

func TestLoadPath_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songbook.toml")
	if err := os.WriteFile(path, []byte("[covers]\nsize = \"huge\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadPath(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".songbook.yaml")
	content := `
remote: https://example.org/songs.git
branch: stable
tools:
  resize:
    program: magick
covers:
  patterns: ["*.jpg"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Remote != "https://example.org/songs.git" {
		t.Errorf("Remote = %q", cfg.Remote)
	}
	if cfg.Branch != "stable" {
		t.Errorf("Branch = %q", cfg.Branch)
	}
	if cfg.Tools.Resize.Program != "magick" {
		t.Errorf("resize program = %q", cfg.Tools.Resize.Program)
	}
	if len(cfg.Covers.Patterns) != 1 {
		t.Errorf("patterns = %v", cfg.Covers.Patterns)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "empty compile program",
			mutate:  func(c *Config) { c.Tools.Compile.Program = "" },
			wantErr: "tools.compile",
		},
		{
			name:    "bad cover size",
			mutate:  func(c *Config) { c.Covers.Size = "128" },
			wantErr: "covers.size",
		},
		{
			name:    "bad pattern",
			mutate:  func(c *Config) { c.Covers.Patterns = []string{"["} },
			wantErr: "covers.patterns[0]",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
		{
			name: "duplicate probe",
			mutate: func(c *Config) {
				c.Probes = append(c.Probes, Probe{Name: "git", Program: "git"})
			},
			wantErr: "duplicate name",
		},
		{
			name:    "bad probe pattern",
			mutate:  func(c *Config) { c.Probes = []Probe{{Name: "x", Program: "x", Pattern: "("}} },
			wantErr: "invalid pattern",
		},
		{
			name:    "probe without program",
			mutate:  func(c *Config) { c.Probes = []Probe{{Name: "x"}} },
			wantErr: "program is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{in: "128x128", w: 128, h: 128},
		{in: "200X300", w: 200, h: 300},
		{in: " 64x32 ", w: 64, h: 32},
		{in: "128", wantErr: true},
		{in: "0x10", wantErr: true},
		{in: "axb", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h, err := ParseSize(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSize(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSize(%q): %v", tt.in, err)
			}
			if w != tt.w || h != tt.h {
				t.Errorf("ParseSize(%q) = %dx%d, want %dx%d", tt.in, w, h, tt.w, tt.h)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Remote = "https://example.org/songbook.git"
	cfg.Tools.Compile.Env = map[string]string{"TEXINPUTS": ".:"}

	if err := Save(cfg, ConfigPath()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Remote != cfg.Remote {
		t.Errorf("Remote = %q, want %q", loaded.Remote, cfg.Remote)
	}
	if loaded.Tools.Compile.Env["TEXINPUTS"] != ".:" {
		t.Errorf("compile env = %v", loaded.Tools.Compile.Env)
	}
	if len(loaded.Probes) != len(cfg.Probes) {
		t.Errorf("expected %d probes, got %d", len(cfg.Probes), len(loaded.Probes))
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("SONGBOOK_ROOT", "/data")

	if got := ExpandPath("$SONGBOOK_ROOT/songbook"); got != "/data/songbook" {
		t.Errorf("ExpandPath = %q", got)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/songbook"); got != filepath.Join(home, "songbook") {
		t.Errorf("ExpandPath(~) = %q", got)
	}
}
