package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/amarbel-llc/songbook/internal/config"
	"github.com/amarbel-llc/songbook/internal/logging"
	"github.com/amarbel-llc/songbook/internal/logsink"
	"github.com/amarbel-llc/songbook/internal/metrics"
	"github.com/amarbel-llc/songbook/internal/runner"
	"github.com/amarbel-llc/songbook/internal/subprocess"
	"github.com/amarbel-llc/songbook/internal/task"
)

type app struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	workdirFlag string
	configPath  string
	logFile     string
	metricsFile string
	logLevel    string
	yes         bool
	quiet       bool

	cfg      *config.Config
	workDir  string
	logger   zerolog.Logger
	sink     *logsink.Sink
	pool     *subprocess.Pool
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	runner   *runner.Runner
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	mu := &sync.Mutex{}
	return &app{
		in:     bufio.NewReader(in),
		out:    &lockedWriter{mu: mu, w: out},
		errOut: &lockedWriter{mu: mu, w: errOut},
		logger: zerolog.Nop(),
	}
}

// lockedWriter serializes writes from process output goroutines and the
// command itself.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// Fd returns the descriptor of the wrapped file so terminal detection works
// through the lock. Writers that are not files report an invalid descriptor.
func (lw *lockedWriter) Fd() uintptr {
	if f, ok := lw.w.(interface{ Fd() uintptr }); ok {
		return f.Fd()
	}
	return ^uintptr(0)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "songbook",
		Short: "Build songbooks with the external toolchain",
		Long: `songbook drives the tools that turn a collection of songs into a typeset
songbook: make for building and cleaning, git for fetching the song
repository, ImageMagick for cover images and the LaTeX checker script.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.workdirFlag, "workdir", "C", "", "songbook working directory")
	flags.StringVar(&a.configPath, "config", "", "config file (default "+config.ConfigPath()+")")
	flags.StringVar(&a.logFile, "log-file", "", "write the full process transcript to this file")
	flags.StringVar(&a.metricsFile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVarP(&a.yes, "yes", "y", false, "confirm tasks without asking")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "only show tool output when a task fails")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &configError{err: err}
	})

	root.AddCommand(
		a.buildCommand(),
		a.cleanCommand(),
		a.downloadCommand(),
		a.resizeCoversCommand(),
		a.lintCommand(),
		a.doctorCommand(),
		a.configCommand(),
		a.initCommand(),
	)

	return root
}

func (a *app) globalConfigPath() string {
	if a.configPath != "" {
		return config.ExpandPath(a.configPath)
	}
	return config.ConfigPath()
}

// setup loads configuration and builds the runner shared by all commands
// that execute tasks.
func (a *app) setup(ctx context.Context) error {
	globalPath := a.globalConfigPath()

	base, err := config.LoadPath(globalPath)
	if err != nil {
		return &configError{err: fmt.Errorf("loading config: %w", err)}
	}

	workDir, err := config.ResolveWorkingDir(a.workdirFlag, base)
	if err != nil {
		return &configError{err: err}
	}

	cfg, err := config.LoadWithProject(globalPath, workDir)
	if err != nil {
		return &configError{err: err}
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, err := logging.New(cfg.Log, a.errOut)
	if err != nil {
		return &configError{err: err}
	}

	a.cfg = cfg
	a.workDir = workDir
	a.logger = logger
	a.sink = logsink.New()
	a.pool = subprocess.NewPool()
	a.registry, a.metrics = metrics.NewRegistry()
	a.runner = runner.New(cfg, workDir, a.sink,
		runner.WithPool(a.pool),
		runner.WithMetrics(a.metrics),
		runner.WithLogger(logger),
	)

	if !a.quiet {
		a.sink.Listen(a.printEntry)
	}

	go func() {
		<-ctx.Done()
		a.pool.CancelAll()
	}()

	a.logger.Debug().
		Str("workdir", workDir).
		Str("config", globalPath).
		Str("project_config", config.ProjectConfigPath(workDir)).
		Msg("configuration loaded")

	return nil
}

// finish writes the transcript and metrics files requested on the command
// line.
func (a *app) finish() error {
	var result *multierror.Error

	if a.logFile != "" && a.sink != nil {
		if err := a.writeTranscript(a.logFile); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if a.metricsFile != "" && a.registry != nil {
		if err := metrics.WriteTextfile(a.registry, a.metricsFile); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

func (a *app) writeTranscript(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}
	defer f.Close()

	if err := a.sink.WriteTranscript(f); err != nil {
		return fmt.Errorf("writing log file: %w", err)
	}
	return nil
}

// action wraps a command body with setup and finish.
func (a *app) action(fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if err := a.setup(ctx); err != nil {
			return err
		}

		err := fn(ctx, args)
		if ferr := a.finish(); ferr != nil {
			if err == nil {
				return ferr
			}
			a.logger.Error().Err(ferr).Msg("writing output files")
		}
		return err
	}
}

func (a *app) printEntry(e logsink.Entry) {
	w := a.out
	if e.Stream == subprocess.StreamStderr {
		w = a.errOut
	}
	fmt.Fprintln(w, e.Text)
}

// flushQuiet prints output that was held back by --quiet.
func (a *app) flushQuiet() {
	if !a.quiet {
		return
	}
	for _, e := range a.sink.Undelivered() {
		fmt.Fprintln(a.errOut, logsink.FormatEntry(e))
	}
}

// confirm accepts t on the user's behalf when --yes is set, otherwise asks
// on stdin. A declined task stays unconfirmed and is rejected by the runner.
func (a *app) confirm(t *task.Task, prompt string) error {
	if !t.RequiresConfirmation() {
		return nil
	}
	if !a.yes {
		fmt.Fprintf(a.errOut, "%s [y/N] ", prompt)
		answer, err := a.in.ReadString('\n')
		if err != nil && answer == "" {
			fmt.Fprintln(a.errOut)
			return nil
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
		default:
			return nil
		}
	}
	return t.Confirm()
}

// execute runs a single task and reports its terminal state.
func (a *app) execute(ctx context.Context, t *task.Task) error {
	e, err := a.runner.Start(ctx, t)
	if err != nil {
		return err
	}

	if t.Kind() == task.KindResizeCovers {
		a.watchProgress(e)
	}

	res := e.Wait()
	return a.report(res)
}

func (a *app) report(res runner.Result) error {
	if !res.Succeeded() {
		a.flushQuiet()
	}

	switch {
	case res.Kind == task.KindLatexLint:
		fmt.Fprintf(a.errOut, "%s (lint: %s)\n", res, res.Lint)
	case len(res.FailedImages) > 0:
		fmt.Fprintf(a.errOut, "%s\n", res)
		for _, img := range res.FailedImages {
			fmt.Fprintf(a.errOut, "  failed: %s\n", img)
		}
	default:
		fmt.Fprintf(a.errOut, "%s\n", res)
	}

	return resultErr(res)
}

func (a *app) watchProgress(e *runner.Execution) {
	p := e.Progress()
	last := ""
	for {
		changed := p.Changed()
		snap := p.Snapshot()
		if snap.Current != "" && snap.Current != last {
			fmt.Fprintf(a.errOut, "[%d/%d] %s\n", snap.Done+1, snap.Total, snap.Current)
			last = snap.Current
		}

		select {
		case <-e.Done():
			return
		case <-changed:
		}
	}
}
