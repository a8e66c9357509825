package config

import (
	"fmt"
	"os"
	"path/filepath"
)

var projectConfigNames = []string{
	".songbook.toml",
	".songbook.yaml",
	".songbook.yml",
}

// ProjectConfigPath returns the project config inside workDir, or "" when
// there is none.
func ProjectConfigPath(workDir string) string {
	for _, name := range projectConfigNames {
		path := filepath.Join(workDir, name)
		if exists(path) {
			return path
		}
	}
	return ""
}

// LoadWithProject loads the config at globalPath (defaults when missing) and
// merges the working directory's project config over it.
func LoadWithProject(globalPath, workDir string) (*Config, error) {
	globalCfg, err := LoadPath(globalPath)
	if err != nil {
		return nil, err
	}

	path := ProjectConfigPath(workDir)
	if path == "" {
		return globalCfg, nil
	}

	projectCfg, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	merged := Merge(globalCfg, projectCfg)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("validating project config %s: %w", path, err)
	}

	return merged, nil
}

// Merge lays over on top of base. Non-empty scalar fields of over win,
// tools merge field by field, and probes merge by name.
func Merge(base, over *Config) *Config {
	merged := *base

	if over.WorkingDir != "" {
		merged.WorkingDir = over.WorkingDir
	}
	if over.Remote != "" {
		merged.Remote = over.Remote
	}
	if over.Branch != "" {
		merged.Branch = over.Branch
	}

	merged.Tools = Tools{
		Clean:   mergeTool(base.Tools.Clean, over.Tools.Clean),
		Compile: mergeTool(base.Tools.Compile, over.Tools.Compile),
		Clone:   mergeTool(base.Tools.Clone, over.Tools.Clone),
		Update:  mergeTool(base.Tools.Update, over.Tools.Update),
		Resize:  mergeTool(base.Tools.Resize, over.Tools.Resize),
		Lint:    mergeTool(base.Tools.Lint, over.Tools.Lint),
	}

	if len(over.Lint.FindingsExitCodes) > 0 {
		merged.Lint.FindingsExitCodes = over.Lint.FindingsExitCodes
	}

	if over.Covers.Dir != "" {
		merged.Covers.Dir = over.Covers.Dir
	}
	if len(over.Covers.Patterns) > 0 {
		merged.Covers.Patterns = over.Covers.Patterns
	}
	if over.Covers.Size != "" {
		merged.Covers.Size = over.Covers.Size
	}

	if len(over.Workdir.Required) > 0 {
		merged.Workdir.Required = over.Workdir.Required
	}
	if len(over.Workdir.Optional) > 0 {
		merged.Workdir.Optional = over.Workdir.Optional
	}

	if over.Log.Level != "" {
		merged.Log.Level = over.Log.Level
	}
	if over.Log.Format != "" {
		merged.Log.Format = over.Log.Format
	}

	merged.Probes = mergeProbes(base.Probes, over.Probes)

	return &merged
}

// mergeTool replaces program and args when set and deep merges env, with
// over's variables taking precedence.
func mergeTool(base, over Tool) Tool {
	result := base

	if over.Program != "" {
		result.Program = over.Program
	}
	if over.Args != nil {
		result.Args = over.Args
	}

	if len(over.Env) > 0 {
		env := make(map[string]string, len(base.Env)+len(over.Env))
		for k, v := range base.Env {
			env[k] = v
		}
		for k, v := range over.Env {
			env[k] = v
		}
		result.Env = env
	}

	return result
}

func mergeProbes(base, over []Probe) []Probe {
	overByName := make(map[string]Probe, len(over))
	for _, p := range over {
		overByName[p.Name] = p
	}

	merged := make([]Probe, 0, len(base)+len(over))
	for _, p := range base {
		if op, ok := overByName[p.Name]; ok {
			merged = append(merged, op)
			delete(overByName, p.Name)
		} else {
			merged = append(merged, p)
		}
	}

	// keep the order of the overriding file for new probes
	for _, p := range over {
		if _, ok := overByName[p.Name]; ok {
			merged = append(merged, p)
		}
	}

	return merged
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
