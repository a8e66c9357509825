package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/amarbel-llc/songbook/internal/config"
	"github.com/amarbel-llc/songbook/internal/runner"
	"github.com/amarbel-llc/songbook/internal/sequencer"
	"github.com/amarbel-llc/songbook/internal/task"
)

func (a *app) buildCommand() *cobra.Command {
	var (
		songbook string
		target   string
		noClean  bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Clean, then build the songbook PDF",
		Long: `Build a songbook PDF with make.

The target is either given directly with --target or derived from a .sb
songbook file in the working directory with --songbook. Without either,
the only .sb file in the working directory is used. Generated files are
cleaned first unless --no-clean is given; the build only starts once the
clean step has succeeded.`,
		Args: cobra.NoArgs,
		RunE: a.action(func(ctx context.Context, _ []string) error {
			var steps []*task.Task
			switch {
			case target != "" && songbook != "":
				return &configError{err: fmt.Errorf("--target and --songbook are mutually exclusive")}
			case target != "":
				steps = sequencer.BuildPipeline(target, !noClean)
			default:
				if songbook == "" {
					songbook = findSongbook(a.workDir)
				}
				steps = sequencer.BuildSongbookPipeline(songbook, !noClean)
			}
			return a.runPipeline(ctx, steps)
		}),
	}

	cmd.Flags().StringVar(&songbook, "songbook", "", "songbook file (.sb) in the working directory")
	cmd.Flags().StringVar(&target, "target", "", "make target to build, such as songbook.pdf")
	cmd.Flags().BoolVar(&noClean, "no-clean", false, "do not clean before building")

	return cmd
}

// findSongbook returns the single .sb file in dir, or "" when there is
// none or more than one.
func findSongbook(dir string) string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.sb"))
	if err != nil || len(matches) != 1 {
		return ""
	}
	return filepath.Base(matches[0])
}

func (a *app) runPipeline(ctx context.Context, steps []*task.Task) error {
	seq := sequencer.New(a.runner, steps,
		sequencer.WithLogger(a.logger),
		sequencer.WithMetrics(a.metrics),
		sequencer.WithStepFunc(func(i int, _ *task.Task, res runner.Result) {
			if res.Succeeded() {
				fmt.Fprintf(a.errOut, "step %d/%d %s\n", i+1, len(steps), res)
			}
		}),
	)

	status, err := seq.Run(ctx)
	if err != nil {
		return err
	}

	if status.State == sequencer.StateSucceeded {
		return nil
	}

	// A step rejected before spawning has no result, only an error.
	if status.FailedAt < 0 || status.FailedAt >= len(status.Results) {
		return status.Err
	}
	fmt.Fprintf(a.errOut, "step %d/%d ", status.FailedAt+1, len(steps))
	return a.report(status.Results[status.FailedAt])
}

func (a *app) cleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove generated files",
		Args:  cobra.NoArgs,
		RunE: a.action(func(ctx context.Context, _ []string) error {
			return a.execute(ctx, task.Clean())
		}),
	}
}

func (a *app) downloadCommand() *cobra.Command {
	var remote, branch string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Clone or update the song repository",
		Long: `Fetch the songbook repository into the working directory.

A working directory that is already a git checkout is updated in place;
otherwise the remote is cloned into it.`,
		Args: cobra.NoArgs,
		RunE: a.action(func(ctx context.Context, _ []string) error {
			t := task.Download(remote)
			if err := t.Set(task.OptBranch, branch); err != nil {
				return err
			}

			from := remote
			if from == "" {
				from = a.cfg.Remote
			}
			if err := a.confirm(t, fmt.Sprintf("Download %s into %s?", from, a.workDir)); err != nil {
				return err
			}
			return a.execute(ctx, t)
		}),
	}

	cmd.Flags().StringVar(&remote, "remote", "", "repository URL (default from config)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch to fetch")

	return cmd
}

func (a *app) resizeCoversCommand() *cobra.Command {
	var size string

	cmd := &cobra.Command{
		Use:   "resize-covers",
		Short: "Shrink cover images larger than the configured size",
		Long: `Resize every cover image under the covers directory that is larger than
the target size. Images are rewritten in place, one at a time. A failing
image does not stop the others; the command still reports failure.`,
		Args: cobra.NoArgs,
		RunE: a.action(func(ctx context.Context, _ []string) error {
			t := task.ResizeCovers()
			if err := t.Set(task.OptSize, size); err != nil {
				return err
			}

			effective := size
			if effective == "" {
				effective = a.cfg.Covers.Size
			}
			if err := a.confirm(t, fmt.Sprintf("Resize covers in %s to %s?", a.cfg.Covers.Dir, effective)); err != nil {
				return err
			}
			return a.execute(ctx, t)
		}),
	}

	cmd.Flags().StringVar(&size, "size", "", "maximum WIDTHxHEIGHT (default from config)")

	return cmd
}

func (a *app) lintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Check the songs with the LaTeX checker",
		Long: `Run the LaTeX checker script over the songs.

Exit status 4 means the checker ran and found problems; 1 means the
checker itself failed.`,
		Args: cobra.NoArgs,
		RunE: a.action(func(ctx context.Context, _ []string) error {
			return a.execute(ctx, task.LatexLint())
		}),
	}
}

func (a *app) doctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the working directory and installed tools",
		Args:  cobra.NoArgs,
		RunE: a.action(func(ctx context.Context, _ []string) error {
			return a.runDoctor(ctx)
		}),
	}
}

func (a *app) runDoctor(ctx context.Context) error {
	fmt.Fprintf(a.out, "Working directory: %s\n", a.workDir)

	wdErr := config.ValidateWorkingDir(a.workDir, a.cfg.Workdir.Required)
	if wdErr != nil {
		fmt.Fprintf(a.out, "  error: %v\n", wdErr)
	} else {
		fmt.Fprintln(a.out, "  ok")
	}
	for _, m := range config.MissingMarkers(a.workDir, a.cfg.Workdir.Optional) {
		fmt.Fprintf(a.out, "  warning: %s not found\n", m)
	}
	fmt.Fprintln(a.out)

	results := a.runner.Probe(ctx, a.cfg.Probes)

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Tool\tProgram\tStatus\tVersion")
	missing := 0
	for _, r := range results {
		version := r.Version
		if version == "" {
			version = "-"
		}
		if r.Status == runner.ProbeMissing {
			missing++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Program, r.Status, version)
	}
	w.Flush()

	switch {
	case wdErr != nil:
		return &configError{err: wdErr}
	case missing > 0:
		return &resultError{code: exitToolNotFound, msg: fmt.Sprintf("%d tool(s) missing", missing)}
	}
	return nil
}

func (a *app) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the global configuration merged with the working directory's project configuration, as TOML.",
		Args:  cobra.NoArgs,
		RunE: a.action(func(_ context.Context, _ []string) error {
			return toml.NewEncoder(a.out).Encode(a.cfg)
		}),
	}
}

func (a *app) initCommand() *cobra.Command {
	var useDefault, force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the songbook config file",
		Long: `Create the songbook config file.

Without flags, writes a commented skeleton.
With --default, writes the full default configuration.
With --force, overwrites an existing file.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.runInit(a.globalConfigPath(), useDefault, force)
		},
	}

	cmd.Flags().BoolVar(&useDefault, "default", false, "write the full default configuration")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}
