package subprocess

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCrashed
	StateToolNotFound
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCrashed:
		return "crashed"
	case StateToolNotFound:
		return "tool-not-found"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s >= StateSucceeded
}

type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

func (s Stream) String() string {
	if s == StreamStderr {
		return "stderr"
	}
	return "stdout"
}

// OutputWaitDelay bounds how long a handle keeps reading output after its
// process has exited.
var OutputWaitDelay = time.Second

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrAlreadyStarted = errors.New("process already started")
	ErrCanceled       = errors.New("process canceled")
)

// Spec describes one external program invocation.
type Spec struct {
	Program string
	Args    []string
	Dir     string
	Env     map[string]string
}

// Argv returns the program followed by its arguments.
func (s Spec) Argv() []string {
	argv := make([]string, 0, len(s.Args)+1)
	argv = append(argv, s.Program)
	return append(argv, s.Args...)
}

func (s Spec) String() string {
	return strings.Join(s.Argv(), " ")
}

// LineFunc receives each output line, without its line terminator, in the
// order the stream produced it.
type LineFunc func(stream Stream, line string)

type Outcome struct {
	State    State
	ExitCode int
	Signal   string
	Canceled bool
	Err      error
}

// Handle owns a single spawned process from launch until its output has
// been drained and its exit status collected. A Handle is started at most
// once and reaches exactly one terminal state.
type Handle struct {
	ID    string
	Label string
	Spec  Spec

	state    atomic.Int32
	canceled atomic.Bool

	mu      sync.Mutex
	cmd     *exec.Cmd
	exited  bool
	started time.Time
	ended   time.Time
	outcome Outcome
	done    chan struct{}
}

func NewHandle(id, label string, spec Spec) *Handle {
	return &Handle{
		ID:    id,
		Label: label,
		Spec:  spec,
		done:  make(chan struct{}),
	}
}

func (h *Handle) State() State {
	return State(h.state.Load())
}

// Done is closed once the handle reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Wait blocks until the handle is terminal. It must only be called after Start.
func (h *Handle) Wait() Outcome {
	<-h.done
	return h.Outcome()
}

func (h *Handle) Duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started.IsZero() {
		return 0
	}
	if h.ended.IsZero() {
		return time.Since(h.started)
	}
	return h.ended.Sub(h.started)
}

// Start resolves and launches the program. Output lines are passed to onLine
// as they arrive. A program that cannot be located or spawned moves the
// handle straight to StateToolNotFound and the returned error wraps
// ErrToolNotFound; onLine is never called in that case. Canceling ctx has
// the same effect as Cancel.
func (h *Handle) Start(ctx context.Context, onLine LineFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.State() != StateNotStarted {
		return ErrAlreadyStarted
	}

	if onLine == nil {
		onLine = func(Stream, string) {}
	}

	path, err := LookupExecutable(h.Spec.Program, h.Spec.Dir, h.Spec.Env)
	if err != nil {
		h.finishLocked(Outcome{State: StateToolNotFound, ExitCode: -1, Err: err})
		return err
	}

	cmd := exec.Command(path, h.Spec.Args...)
	cmd.Dir = h.Spec.Dir
	cmd.Env = buildEnv(h.Spec.Env)
	setProcessGroup(cmd)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		err = fmt.Errorf("%w: %s: creating stdout pipe: %v", ErrToolNotFound, h.Spec.Program, err)
		h.finishLocked(Outcome{State: StateToolNotFound, ExitCode: -1, Err: err})
		return err
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		err = fmt.Errorf("%w: %s: creating stderr pipe: %v", ErrToolNotFound, h.Spec.Program, err)
		h.finishLocked(Outcome{State: StateToolNotFound, ExitCode: -1, Err: err})
		return err
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		err = fmt.Errorf("%w: %s: %v", ErrToolNotFound, h.Spec.Program, err)
		h.finishLocked(Outcome{State: StateToolNotFound, ExitCode: -1, Err: err})
		return err
	}
	// The child holds its own copies of the write ends.
	closeAll(stdoutW, stderrW)

	h.cmd = cmd
	h.started = time.Now()
	h.state.Store(int32(StateRunning))

	go h.wait(ctx, stdoutR, stderrR, onLine)

	return nil
}

// Cancel asks the operating system to terminate a running process and its
// process group. The handle still completes normally and ends up Failed;
// output already delivered is unaffected. Cancel on a handle that is not
// running, or whose process has already exited, does nothing.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.State() != StateRunning || h.cmd == nil || h.exited {
		return
	}
	if !h.canceled.CompareAndSwap(false, true) {
		return
	}
	killProcessGroup(h.cmd)
}

func (h *Handle) wait(ctx context.Context, stdout, stderr *os.File, onLine LineFunc) {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			h.Cancel()
		case <-stop:
		}
	}()

	drained := make(chan error, 1)
	go func() {
		var g errgroup.Group
		g.Go(func() error { return drain(stdout, StreamStdout, onLine) })
		g.Go(func() error { return drain(stderr, StreamStderr, onLine) })
		drained <- g.Wait()
	}()

	waitErr := h.cmd.Wait()

	h.mu.Lock()
	h.exited = true
	h.mu.Unlock()
	close(stop)

	// A descendant outside the process group may still hold the write ends.
	var readErr error
	select {
	case readErr = <-drained:
	case <-time.After(OutputWaitDelay):
		closeAll(stdout, stderr)
		readErr = <-drained
	}
	closeAll(stdout, stderr)

	outcome := classify(waitErr, h.canceled.Load())
	if outcome.Err == nil && readErr != nil {
		outcome.Err = fmt.Errorf("reading output: %w", readErr)
	}

	h.mu.Lock()
	h.finishLocked(outcome)
	h.mu.Unlock()
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}

func (h *Handle) finishLocked(outcome Outcome) {
	h.outcome = outcome
	h.ended = time.Now()
	h.state.Store(int32(outcome.State))
	close(h.done)
}

func classify(err error, canceled bool) Outcome {
	if canceled {
		return Outcome{State: StateFailed, ExitCode: exitCode(err), Canceled: true, Err: ErrCanceled}
	}
	if err == nil {
		return Outcome{State: StateSucceeded, ExitCode: 0}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if sig, ok := signalOf(exitErr); ok {
			return Outcome{State: StateCrashed, ExitCode: -1, Signal: sig, Err: err}
		}
		return Outcome{State: StateFailed, ExitCode: exitErr.ExitCode(), Err: err}
	}

	return Outcome{State: StateCrashed, ExitCode: -1, Err: err}
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err == nil {
		return 0
	}
	return -1
}

func drain(r io.Reader, stream Stream, onLine LineFunc) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			onLine(stream, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// buildEnv overlays overrides on the current environment. Keys are applied
// in sorted order so the resulting slice is stable.
func buildEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}

	env := os.Environ()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
