// Package runner executes build tasks as external processes, streaming
// their output into a log sink and reporting one terminal result per
// execution.
package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/amarbel-llc/songbook/internal/config"
	"github.com/amarbel-llc/songbook/internal/logsink"
	"github.com/amarbel-llc/songbook/internal/metrics"
	"github.com/amarbel-llc/songbook/internal/subprocess"
	"github.com/amarbel-llc/songbook/internal/task"
)

type Runner struct {
	cfg     *config.Config
	workDir string
	sink    *logsink.Sink
	pool    *subprocess.Pool
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

type Option func(*Runner)

// WithPool shares a handle pool between runners so that all processes can
// be canceled together.
func WithPool(p *subprocess.Pool) Option {
	return func(r *Runner) { r.pool = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func New(cfg *config.Config, workDir string, sink *logsink.Sink, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		workDir: workDir,
		sink:    sink,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = subprocess.NewPool()
	}
	if r.sink == nil {
		r.sink = logsink.New()
	}
	return r
}

func (r *Runner) Sink() *logsink.Sink {
	return r.sink
}

func (r *Runner) Pool() *subprocess.Pool {
	return r.pool
}

func (r *Runner) WorkDir() string {
	return r.workDir
}

// Start validates and plans t, then runs it in the background. Problems
// found before anything is spawned are returned as errors and create no
// process handle.
func (r *Runner) Start(ctx context.Context, t *task.Task) (*Execution, error) {
	if err := t.Begin(); err != nil {
		r.logger.Warn().Err(err).Str("task", t.String()).Msg("task not started")
		return nil, err
	}

	invocations, err := task.Plan(t, r.cfg, r.workDir)
	if err != nil {
		t.End()
		r.logger.Warn().Err(err).Str("task", t.String()).Msg("task not started")
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	e := newExecution(uuid.NewString(), t, len(invocations), cancel)

	go func() {
		defer cancel()
		result := r.run(ctx, e, invocations)
		r.metrics.ObserveTask(result.Kind.String(), result.State.String(), result.Duration())
		t.End()
		e.finish(result)
	}()

	return e, nil
}

// Check validates t's options without planning against the working tree
// or starting anything.
func (r *Runner) Check(t *task.Task) error {
	return task.Check(t, r.cfg, r.workDir)
}

// Execute runs t and waits for its terminal result. Other runners and
// executions are not blocked.
func (r *Runner) Execute(ctx context.Context, t *task.Task) (Result, error) {
	e, err := r.Start(ctx, t)
	if err != nil {
		return Result{}, err
	}
	return e.Wait(), nil
}

// run issues the invocations one after another. A failing invocation of a
// batch does not stop the remaining ones; a missing tool or cancellation
// does.
func (r *Runner) run(ctx context.Context, e *Execution, invocations []task.Invocation) Result {
	kind := e.Task.Kind()
	res := Result{
		TaskID:      e.Task.ID,
		ExecutionID: e.ID,
		Kind:        kind,
		State:       subprocess.StateSucceeded,
		Started:     time.Now(),
	}
	if kind == task.KindResizeCovers {
		res.Images = len(invocations)
	}

	log := r.logger.With().Str("task", e.Task.String()).Str("execution", e.ID).Logger()
	log.Info().Int("invocations", len(invocations)).Msg("task started")

	var failures *multierror.Error
	failed := false

	for _, inv := range invocations {
		if ctx.Err() != nil {
			res.State = subprocess.StateFailed
			res.Canceled = true
			res.Err = subprocess.ErrCanceled
			break
		}

		h, outcome := r.invoke(ctx, e, inv, log)
		res.Handles = append(res.Handles, h.ID)

		if outcome.State == subprocess.StateSucceeded {
			e.progress.finish(true)
			continue
		}

		if outcome.State == subprocess.StateToolNotFound {
			e.progress.stop()
			res.State = subprocess.StateToolNotFound
			res.ExitCode = -1
			res.Err = outcome.Err
			break
		}

		if outcome.Canceled {
			e.progress.stop()
			res.State = subprocess.StateFailed
			res.ExitCode = outcome.ExitCode
			res.Canceled = true
			res.Err = subprocess.ErrCanceled
			break
		}

		e.progress.finish(false)
		if !failed {
			failed = true
			res.State = outcome.State
			res.ExitCode = outcome.ExitCode
			res.Signal = outcome.Signal
		}

		if inv.Image != "" {
			res.State = subprocess.StateFailed
			res.FailedImages = append(res.FailedImages, inv.Image)
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", inv.Image, outcome.Err))
		} else {
			res.Err = outcome.Err
		}
	}

	if failures != nil {
		if res.Err != nil {
			failures = multierror.Append(failures, res.Err)
		}
		res.Err = failures.ErrorOrNil()
	}

	if kind == task.KindLatexLint {
		res.Lint = r.lintVerdict(res)
	}

	res.Ended = time.Now()

	event := log.Info()
	if !res.Succeeded() {
		event = log.Warn()
	}
	event.Str("state", res.State.String()).
		Int("exit_code", res.ExitCode).
		Int("handles", len(res.Handles)).
		Dur("duration", res.Duration()).
		Err(res.Err).
		Msg("task finished")

	return res
}

func (r *Runner) invoke(ctx context.Context, e *Execution, inv task.Invocation, log zerolog.Logger) (*subprocess.Handle, subprocess.Outcome) {
	h := subprocess.NewHandle(uuid.NewString(), inv.Label, inv.Spec)
	r.pool.Track(h)
	r.metrics.HandleCreated(e.Task.Kind().String())
	e.progress.begin(inv.Label)

	hlog := log.With().Str("handle", h.ID).Str("label", inv.Label).Logger()

	if err := h.Start(ctx, r.sink.LineFunc(e.Task.ID, h.ID)); err != nil {
		if errors.Is(err, subprocess.ErrToolNotFound) {
			hlog.Warn().Err(err).Str("program", inv.Program).Msg("tool not found")
		} else {
			hlog.Error().Err(err).Msg("process not started")
		}
	} else {
		hlog.Debug().Strs("argv", inv.Argv()).Str("dir", inv.Dir).Msg("process started")
	}

	outcome := h.Wait()
	hlog.Debug().
		Str("state", outcome.State.String()).
		Int("exit_code", outcome.ExitCode).
		Dur("duration", h.Duration()).
		Msg("process exited")

	return h, outcome
}

func (r *Runner) lintVerdict(res Result) LintVerdict {
	switch res.State {
	case subprocess.StateSucceeded:
		return LintClean
	case subprocess.StateFailed:
		if !res.Canceled && slices.Contains(r.cfg.Lint.FindingsExitCodes, res.ExitCode) {
			return LintFindings
		}
		return LintError
	default:
		return LintError
	}
}
