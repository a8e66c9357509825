// Package sequencer runs build tasks one after another and stops at the
// first step that does not succeed.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amarbel-llc/songbook/internal/metrics"
	"github.com/amarbel-llc/songbook/internal/runner"
	"github.com/amarbel-llc/songbook/internal/subprocess"
	"github.com/amarbel-llc/songbook/internal/task"
)

var ErrAlreadyStarted = errors.New("sequencer already started")

type State int

const (
	StatePending State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a snapshot of a pipeline. FailedAt is the index of the step
// that stopped the pipeline, or -1.
type Status struct {
	State    State
	Current  int
	FailedAt int
	Results  []runner.Result
	Err      error
}

func (s Status) String() string {
	if s.State == StateFailed {
		return fmt.Sprintf("failed-at(%d)", s.FailedAt)
	}
	return s.State.String()
}

// Starter checks and launches task executions; *runner.Runner implements it.
type Starter interface {
	Check(t *task.Task) error
	Start(ctx context.Context, t *task.Task) (*runner.Execution, error)
}

// StepFunc is called after each step with its index and result.
type StepFunc func(index int, t *task.Task, res runner.Result)

type Sequencer struct {
	ID string

	starter Starter
	steps   []*task.Task
	onStep  StepFunc
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu      sync.Mutex
	status  Status
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type Option func(*Sequencer)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sequencer) { s.metrics = m }
}

func WithStepFunc(fn StepFunc) Option {
	return func(s *Sequencer) { s.onStep = fn }
}

func New(starter Starter, steps []*task.Task, opts ...Option) *Sequencer {
	s := &Sequencer{
		ID:      uuid.NewString(),
		starter: starter,
		steps:   steps,
		logger:  zerolog.Nop(),
		status:  Status{State: StatePending, FailedAt: -1},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sequencer) Steps() []*task.Task {
	return s.steps
}

// Start moves the pipeline to Running and begins step 0. It does not wait.
// A sequencer runs at most once.
func (s *Sequencer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.status.State = StateRunning

	go func() {
		defer cancel()
		s.run(ctx)
	}()
	return nil
}

// Run starts the pipeline and waits for its aggregate result.
func (s *Sequencer) Run(ctx context.Context) (Status, error) {
	if err := s.Start(ctx); err != nil {
		return s.Status(), err
	}
	return s.Wait(), nil
}

func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}

func (s *Sequencer) Wait() Status {
	<-s.done
	return s.Status()
}

// Cancel stops the running step; no later step is started.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Sequencer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	st.Results = append([]runner.Result(nil), s.status.Results...)
	return st
}

func (s *Sequencer) run(ctx context.Context) {
	log := s.logger.With().Str("pipeline", s.ID).Logger()
	log.Info().Int("steps", len(s.steps)).Msg("pipeline started")
	start := time.Now()

	if s.check(log) {
		s.runSteps(ctx, log)
	}

	s.mu.Lock()
	if s.status.State == StateRunning {
		s.status.State = StateSucceeded
	}
	final := s.status
	s.mu.Unlock()

	s.metrics.ObservePipeline(final.State.String())
	log.Info().
		Str("state", final.String()).
		Dur("duration", time.Since(start)).
		Msg("pipeline finished")

	close(s.done)
}

// check rejects the pipeline before any step is spawned when a step's own
// options are invalid.
func (s *Sequencer) check(log zerolog.Logger) bool {
	for i, t := range s.steps {
		if err := s.starter.Check(t); err != nil {
			log.Warn().Err(err).Int("step", i).Str("task", t.String()).Msg("step rejected")
			s.mu.Lock()
			s.status.Current = i
			s.mu.Unlock()
			s.fail(i, nil, err)
			return false
		}
	}
	return true
}

func (s *Sequencer) runSteps(ctx context.Context, log zerolog.Logger) {
	for i, t := range s.steps {
		s.mu.Lock()
		s.status.Current = i
		s.mu.Unlock()

		steplog := log.With().Int("step", i).Str("task", t.String()).Logger()

		// Each step must reach a terminal state before the next one starts.
		e, err := s.starter.Start(ctx, t)
		if err != nil {
			steplog.Warn().Err(err).Msg("step not started")
			s.fail(i, nil, err)
			return
		}

		res := e.Wait()
		if s.onStep != nil {
			s.onStep(i, t, res)
		}

		if res.State != subprocess.StateSucceeded {
			steplog.Warn().Str("state", res.State.String()).Msg("step failed")
			s.fail(i, &res, fmt.Errorf("step %d (%s): %s", i, t.Kind(), res))
			return
		}

		s.mu.Lock()
		s.status.Results = append(s.status.Results, res)
		s.mu.Unlock()
	}
}

func (s *Sequencer) fail(i int, res *runner.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res != nil {
		s.status.Results = append(s.status.Results, *res)
	}
	s.status.State = StateFailed
	s.status.FailedAt = i
	s.status.Err = err
}

// BuildPipeline is the "clean, then compile" pipeline for a build target.
func BuildPipeline(target string, clean bool) []*task.Task {
	return pipeline(task.Compile(target), clean)
}

// BuildSongbookPipeline compiles the PDF derived from a .sb file.
func BuildSongbookPipeline(songbook string, clean bool) []*task.Task {
	return pipeline(task.CompileSongbook(songbook), clean)
}

func pipeline(compile *task.Task, clean bool) []*task.Task {
	if !clean {
		return []*task.Task{compile}
	}
	return []*task.Task{task.Clean(), compile}
}
