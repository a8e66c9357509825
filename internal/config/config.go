package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

type Config struct {
	WorkingDir string  `toml:"working_dir,omitempty" yaml:"working_dir,omitempty"`
	Remote     string  `toml:"remote,omitempty" yaml:"remote,omitempty"`
	Branch     string  `toml:"branch,omitempty" yaml:"branch,omitempty"`
	Tools      Tools   `toml:"tools" yaml:"tools"`
	Lint       Lint    `toml:"lint" yaml:"lint"`
	Covers     Covers  `toml:"covers" yaml:"covers"`
	Workdir    Workdir `toml:"workdir" yaml:"workdir"`
	Log        Log     `toml:"log" yaml:"log"`
	Probes     []Probe `toml:"probe,omitempty" yaml:"probe,omitempty"`
}

// Tool is an external program invocation template. Args may contain
// placeholders such as {target} that are filled in per task.
type Tool struct {
	Program string            `toml:"program,omitempty" yaml:"program,omitempty"`
	Args    []string          `toml:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `toml:"env,omitempty" yaml:"env,omitempty"`
}

type Tools struct {
	Clean   Tool `toml:"clean" yaml:"clean"`
	Compile Tool `toml:"compile" yaml:"compile"`
	Clone   Tool `toml:"clone" yaml:"clone"`
	Update  Tool `toml:"update" yaml:"update"`
	Resize  Tool `toml:"resize" yaml:"resize"`
	Lint    Tool `toml:"lint" yaml:"lint"`
}

type Lint struct {
	// FindingsExitCodes are checker exit codes meaning "ran and found issues".
	FindingsExitCodes []int `toml:"findings_exit_codes,omitempty" yaml:"findings_exit_codes,omitempty"`
}

type Covers struct {
	Dir      string   `toml:"dir,omitempty" yaml:"dir,omitempty"`
	Patterns []string `toml:"patterns,omitempty" yaml:"patterns,omitempty"`
	Size     string   `toml:"size,omitempty" yaml:"size,omitempty"`
}

type Workdir struct {
	Required []string `toml:"required,omitempty" yaml:"required,omitempty"`
	Optional []string `toml:"optional,omitempty" yaml:"optional,omitempty"`
}

type Log struct {
	Level  string `toml:"level,omitempty" yaml:"level,omitempty"`
	Format string `toml:"format,omitempty" yaml:"format,omitempty"`
}

// Probe checks that a tool is installed by running it with Args and
// extracting a version with Pattern from its output.
type Probe struct {
	Name    string   `toml:"name" yaml:"name"`
	Program string   `toml:"program" yaml:"program"`
	Args    []string `toml:"args,omitempty" yaml:"args,omitempty"`
	Pattern string   `toml:"pattern,omitempty" yaml:"pattern,omitempty"`
}

func Default() *Config {
	return &Config{
		WorkingDir: filepath.Join("$HOME", "songbook"),
		Tools: Tools{
			Clean:   Tool{Program: "make", Args: []string{"clean"}},
			Compile: Tool{Program: "make", Args: []string{"{target}"}},
			Clone:   Tool{Program: "git", Args: []string{"clone", "{remote}", "{dir}"}},
			Update:  Tool{Program: "git", Args: []string{"pull", "--ff-only"}},
			Resize:  Tool{Program: "convert", Args: []string{"{image}", "-resize", "{size}", "{image}"}},
			Lint:    Tool{Program: "python3", Args: []string{"utils/latex-preprocessing.py", "{songs}"}},
		},
		Lint: Lint{FindingsExitCodes: []int{1}},
		Covers: Covers{
			Dir:      "img",
			Patterns: []string{"*.jpg", "*.jpeg", "*.png"},
			Size:     "128x128",
		},
		Workdir: Workdir{
			Required: []string{"makefile", "songs", "img"},
			Optional: []string{"songbook.py", "lilypond", "utils"},
		},
		Log: Log{Level: "info", Format: "console"},
		Probes: []Probe{
			{Name: "make", Program: "make", Args: []string{"--version"}, Pattern: `GNU Make ([^\n]+)`},
			{Name: "git", Program: "git", Args: []string{"--version"}, Pattern: `git version ([^\n]+)`},
			{Name: "imagemagick", Program: "convert", Args: []string{"--version"}, Pattern: `ImageMagick ([^ \n]+)`},
			{Name: "lilypond", Program: "lilypond", Args: []string{"--version"}, Pattern: `GNU LilyPond ([^\n]+)`},
			{Name: "pdflatex", Program: "pdflatex", Args: []string{"--version"}, Pattern: `pdfTeX ([^\n]+)`},
			{Name: "python", Program: "python3", Args: []string{"--version"}, Pattern: `Python ([^\n]+)`},
		},
	}
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "songbook")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "songbook")
	}
	return filepath.Join(home, ".config", "songbook")
}

func ConfigDir() string {
	return configDir()
}

func ConfigPath() string {
	return filepath.Join(configDir(), "songbook.toml")
}

// Load reads the global config file, merged over the defaults. A missing
// file yields the defaults.
func Load() (*Config, error) {
	return LoadPath(ConfigPath())
}

// LoadPath is Load for an explicit file. A missing file is not an error.
func LoadPath(path string) (*Config, error) {
	cfg := Default()

	fileCfg, err := LoadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	merged := Merge(cfg, fileCfg)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return merged, nil
}

// LoadFile decodes a single config file without applying defaults. The
// format follows the extension: .yaml and .yml are YAML, anything else TOML.
// The returned error satisfies os.IsNotExist when the file is missing.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	tools := []struct {
		name string
		tool Tool
	}{
		{"clean", c.Tools.Clean},
		{"compile", c.Tools.Compile},
		{"clone", c.Tools.Clone},
		{"update", c.Tools.Update},
		{"resize", c.Tools.Resize},
		{"lint", c.Tools.Lint},
	}
	for _, t := range tools {
		if strings.TrimSpace(t.tool.Program) == "" {
			return fmt.Errorf("tools.%s: program is required", t.name)
		}
	}

	if _, _, err := ParseSize(c.Covers.Size); err != nil {
		return fmt.Errorf("covers.size: %w", err)
	}
	for i, p := range c.Covers.Patterns {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("covers.patterns[%d]: invalid pattern %q: %w", i, p, err)
		}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: invalid level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format: invalid format %q (must be %q or %q)", c.Log.Format, "json", "console")
	}

	names := make(map[string]bool)
	for i, p := range c.Probes {
		if p.Name == "" {
			return fmt.Errorf("probe[%d]: name is required", i)
		}
		if p.Program == "" {
			return fmt.Errorf("probe[%d] (%s): program is required", i, p.Name)
		}
		if p.Pattern != "" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return fmt.Errorf("probe[%d] (%s): invalid pattern: %w", i, p.Name, err)
			}
		}
		if names[p.Name] {
			return fmt.Errorf("probe[%d]: duplicate name %q", i, p.Name)
		}
		names[p.Name] = true
	}

	return nil
}

// ParseSize parses a WIDTHxHEIGHT cover size such as "128x128".
func ParseSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q (want WIDTHxHEIGHT)", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid width in size %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid height in size %q", s)
	}
	return width, height, nil
}

func (c *Config) FindProbe(name string) *Probe {
	for i := range c.Probes {
		if c.Probes[i].Name == name {
			return &c.Probes[i]
		}
	}
	return nil
}

// Save writes cfg as TOML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return nil
}

// ExpandPath expands environment variables and a leading ~.
func ExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
