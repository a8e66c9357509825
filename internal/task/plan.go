package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amarbel-llc/songbook/internal/config"
	"github.com/amarbel-llc/songbook/internal/covers"
	"github.com/amarbel-llc/songbook/internal/subprocess"
)

// Invocation is one concrete program run of a task. Most tasks plan a
// single invocation; ResizeCovers plans one per image.
type Invocation struct {
	Label string
	Image string
	subprocess.Spec
}

// Plan materializes the invocations for t from its options and cfg. The
// same options, config and working tree always give the same result. All
// problems are reported as *ConfigError before anything is spawned.
func Plan(t *Task, cfg *config.Config, workDir string) ([]Invocation, error) {
	p := planner{
		kind:    t.Kind(),
		opts:    t.Options(),
		cfg:     cfg,
		workDir: filepath.Clean(workDir),
	}

	switch p.kind {
	case KindClean:
		return p.clean()
	case KindCompile:
		return p.compile()
	case KindDownload:
		return p.download()
	case KindResizeCovers:
		return p.resizeCovers()
	case KindLatexLint:
		return p.lint()
	default:
		return nil, &ConfigError{Kind: p.kind, Reason: "unknown task kind"}
	}
}

// Check reports the problems Plan would find in t's options and
// confirmation. Problems with the working tree are left to Plan, since an
// earlier pipeline step may still create or change the tree.
func Check(t *Task, cfg *config.Config, workDir string) error {
	if t.RequiresConfirmation() && !t.Confirmed() {
		return &ConfigError{Kind: t.Kind(), Reason: "not confirmed", Err: ErrNotConfirmed}
	}
	if _, err := Plan(t, cfg, workDir); err != nil && !errors.Is(err, ErrWorkingDir) {
		return err
	}
	return nil
}

type planner struct {
	kind    Kind
	opts    Options
	cfg     *config.Config
	workDir string
}

func (p planner) values() map[string]string {
	v := map[string]string{
		"dir":    p.workDir,
		"remote": p.opt(OptRemote, p.cfg.Remote),
		"branch": p.opt(OptBranch, p.cfg.Branch),
		"size":   p.opt(OptSize, p.cfg.Covers.Size),
		"songs":  p.opt(OptSongs, "songs"),
		"target": p.opts[OptTarget],
	}
	return v
}

func (p planner) opt(name, fallback string) string {
	if v := p.opts[name]; v != "" {
		return v
	}
	return fallback
}

func (p planner) configErr(option, reason string, err error) *ConfigError {
	return &ConfigError{Kind: p.kind, Option: option, Reason: reason, Err: err}
}

func (p planner) requireWorkingDir() error {
	if err := config.ValidateWorkingDir(p.workDir, p.cfg.Workdir.Required); err != nil {
		return p.configErr("", err.Error(), ErrWorkingDir)
	}
	return nil
}

func (p planner) invocation(label, toolName string, tool config.Tool, dir string, values map[string]string) (Invocation, error) {
	args, err := Expand(tool.Args, values)
	if err != nil {
		var mv *MissingValueError
		if errors.As(err, &mv) {
			return Invocation{}, p.configErr(mv.Placeholder, fmt.Sprintf("tools.%s uses {%s} but no value is set", toolName, mv.Placeholder), ErrMissingOption)
		}
		return Invocation{}, p.configErr("", err.Error(), nil)
	}

	return Invocation{
		Label: label,
		Spec: subprocess.Spec{
			Program: tool.Program,
			Args:    args,
			Dir:     dir,
			Env:     tool.Env,
		},
	}, nil
}

func (p planner) single(label, toolName string, tool config.Tool, dir string, values map[string]string) ([]Invocation, error) {
	inv, err := p.invocation(label, toolName, tool, dir, values)
	if err != nil {
		return nil, err
	}
	return []Invocation{inv}, nil
}

func (p planner) clean() ([]Invocation, error) {
	if err := p.requireWorkingDir(); err != nil {
		return nil, err
	}
	return p.single("clean", "clean", p.cfg.Tools.Clean, p.workDir, p.values())
}

func (p planner) compile() ([]Invocation, error) {
	target := p.opts[OptTarget]
	songbook := p.opts[OptSongbook]

	switch {
	case target != "" && songbook != "":
		return nil, p.configErr(OptTarget, "target and songbook are mutually exclusive", ErrInvalidOption)
	case target == "" && songbook == "":
		return nil, p.configErr(OptTarget, "a target or songbook is required", ErrMissingOption)
	case songbook != "":
		derived, err := p.deriveTarget(songbook)
		if err != nil {
			return nil, err
		}
		target = derived
	}

	if strings.ContainsAny(target, " \t\n") {
		return nil, p.configErr(OptTarget, fmt.Sprintf("target %q contains whitespace", target), ErrInvalidOption)
	}

	if err := p.requireWorkingDir(); err != nil {
		return nil, err
	}

	values := p.values()
	values["target"] = target
	return p.single("compile", "compile", p.cfg.Tools.Compile, p.workDir, values)
}

// deriveTarget maps a songbook file in the working directory to the PDF
// target the build tool knows how to make.
func (p planner) deriveTarget(songbook string) (string, error) {
	if filepath.Ext(songbook) != ".sb" {
		return "", p.configErr(OptSongbook, songbook, ErrWrongExtension)
	}

	path := songbook
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.workDir, path)
	}
	if filepath.Dir(filepath.Clean(path)) != p.workDir {
		return "", p.configErr(OptSongbook, songbook, ErrWrongDirectory)
	}

	base := filepath.Base(path)
	return strings.TrimSuffix(base, ".sb") + ".pdf", nil
}

// download clones the remote next to a fresh working directory, or updates
// an existing checkout in place.
func (p planner) download() ([]Invocation, error) {
	values := p.values()
	if values["remote"] == "" {
		return nil, p.configErr(OptRemote, "no remote configured", ErrMissingOption)
	}
	branch := values["branch"]

	if isDir(filepath.Join(p.workDir, ".git")) {
		inv, err := p.invocation("update", "update", p.cfg.Tools.Update, p.workDir, values)
		if err != nil {
			return nil, err
		}
		if branch != "" && !Uses(p.cfg.Tools.Update.Args, "branch") {
			inv.Args = append(inv.Args, "origin", branch)
		}
		return []Invocation{inv}, nil
	}

	if entries, err := os.ReadDir(p.workDir); err == nil && len(entries) > 0 {
		return nil, p.configErr("", fmt.Sprintf("%s exists and is not a checkout", p.workDir), ErrWorkingDir)
	}

	parent := filepath.Dir(p.workDir)
	if !isDir(parent) {
		return nil, p.configErr("", fmt.Sprintf("parent directory %s does not exist", parent), ErrWorkingDir)
	}

	inv, err := p.invocation("clone", "clone", p.cfg.Tools.Clone, parent, values)
	if err != nil {
		return nil, err
	}
	if branch != "" && !Uses(p.cfg.Tools.Clone.Args, "branch") {
		inv.Args = append(inv.Args, "--branch", branch)
	}
	return []Invocation{inv}, nil
}

func (p planner) resizeCovers() ([]Invocation, error) {
	values := p.values()
	width, height, err := config.ParseSize(values["size"])
	if err != nil {
		return nil, p.configErr(OptSize, err.Error(), ErrInvalidOption)
	}

	dir := p.cfg.Covers.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.workDir, dir)
	}
	if !isDir(dir) {
		return nil, p.configErr("covers.dir", fmt.Sprintf("%s is not a directory", dir), ErrWorkingDir)
	}

	scanner, err := covers.NewScanner(p.cfg.Covers.Patterns, width, height)
	if err != nil {
		return nil, p.configErr("covers.patterns", err.Error(), ErrInvalidOption)
	}
	images, err := scanner.Scan(p.workDir, dir)
	if err != nil {
		return nil, p.configErr("covers.dir", err.Error(), ErrWorkingDir)
	}

	invocations := make([]Invocation, 0, len(images))
	for _, img := range images {
		values["image"] = img.Rel
		inv, err := p.invocation("resize "+img.Rel, "resize", p.cfg.Tools.Resize, p.workDir, values)
		if err != nil {
			return nil, err
		}
		inv.Image = img.Rel
		invocations = append(invocations, inv)
	}
	return invocations, nil
}

func (p planner) lint() ([]Invocation, error) {
	if err := p.requireWorkingDir(); err != nil {
		return nil, err
	}
	return p.single("lint", "lint", p.cfg.Tools.Lint, p.workDir, p.values())
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
