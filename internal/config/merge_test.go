package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMerge_ToolsAndEnv(t *testing.T) {
	base := Default()
	base.Tools.Compile.Env = map[string]string{"A": "base", "B": "base"}

	over := &Config{
		Tools: Tools{
			Compile: Tool{Env: map[string]string{"B": "project", "C": "project"}},
			Resize:  Tool{Program: "magick", Args: []string{"mogrify", "-resize", "{size}", "{image}"}},
		},
	}

	merged := Merge(base, over)

	if merged.Tools.Compile.Program != "make" {
		t.Errorf("compile program = %q", merged.Tools.Compile.Program)
	}
	env := merged.Tools.Compile.Env
	if env["A"] != "base" || env["B"] != "project" || env["C"] != "project" {
		t.Errorf("compile env = %v", env)
	}
	if merged.Tools.Resize.Program != "magick" || len(merged.Tools.Resize.Args) != 4 {
		t.Errorf("resize = %+v", merged.Tools.Resize)
	}
	if base.Tools.Compile.Env["B"] != "base" {
		t.Error("merge must not modify base env")
	}
}

func TestMerge_ProbesByName(t *testing.T) {
	base := &Config{Probes: []Probe{
		{Name: "make", Program: "make"},
		{Name: "git", Program: "git"},
	}}
	over := &Config{Probes: []Probe{
		{Name: "xelatex", Program: "xelatex"},
		{Name: "make", Program: "gmake"},
	}}

	merged := Merge(base, over)

	if len(merged.Probes) != 3 {
		t.Fatalf("expected 3 probes, got %d", len(merged.Probes))
	}
	if merged.Probes[0].Program != "gmake" {
		t.Errorf("make probe should be overridden, got %q", merged.Probes[0].Program)
	}
	if merged.Probes[1].Name != "git" {
		t.Errorf("expected git second, got %q", merged.Probes[1].Name)
	}
	if merged.Probes[2].Name != "xelatex" {
		t.Errorf("expected xelatex appended, got %q", merged.Probes[2].Name)
	}
}

func TestLoadWithProject(t *testing.T) {
	globalDir := t.TempDir()
	globalPath := filepath.Join(globalDir, "songbook.toml")
	if err := os.WriteFile(globalPath, []byte("remote = \"https://global.example/songs.git\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	workDir := t.TempDir()
	project := "remote = \"https://project.example/songs.git\"\n[covers]\ndir = \"covers\"\n"
	if err := os.WriteFile(filepath.Join(workDir, ".songbook.toml"), []byte(project), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithProject(globalPath, workDir)
	if err != nil {
		t.Fatalf("LoadWithProject: %v", err)
	}
	if cfg.Remote != "https://project.example/songs.git" {
		t.Errorf("Remote = %q", cfg.Remote)
	}
	if cfg.Covers.Dir != "covers" {
		t.Errorf("covers dir = %q", cfg.Covers.Dir)
	}
	if cfg.Covers.Size != "128x128" {
		t.Errorf("covers size should keep default, got %q", cfg.Covers.Size)
	}
}

func TestLoadWithProject_NoProjectConfig(t *testing.T) {
	cfg, err := LoadWithProject(filepath.Join(t.TempDir(), "missing.toml"), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithProject: %v", err)
	}
	if cfg.Tools.Clean.Program != "make" {
		t.Errorf("expected defaults, got clean program %q", cfg.Tools.Clean.Program)
	}
}
