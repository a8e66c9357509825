// Package task models the build task variants and turns a task plus its
// options into concrete program invocations.
package task

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Option names understood by Plan.
const (
	OptTarget   = "target"
	OptSongbook = "songbook"
	OptRemote   = "remote"
	OptBranch   = "branch"
	OptSize     = "size"
	OptSongs    = "songs"
)

type Options map[string]string

func (o Options) clone() Options {
	c := make(Options, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// Names returns the option names in sorted order.
func (o Options) Names() []string {
	names := make([]string, 0, len(o))
	for k := range o {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Task is one caller-owned build task instance. Options may be changed
// until the first execution begins; after that the task is frozen and a
// new instance is needed for different options.
type Task struct {
	ID   string
	kind Kind

	mu        sync.Mutex
	options   Options
	confirmed bool
	frozen    bool

	running atomic.Bool
}

func New(kind Kind, opts Options) *Task {
	if opts == nil {
		opts = Options{}
	}
	return &Task{
		ID:      uuid.NewString(),
		kind:    kind,
		options: opts.clone(),
	}
}

func Clean() *Task {
	return New(KindClean, nil)
}

func Compile(target string) *Task {
	return New(KindCompile, Options{OptTarget: target})
}

// CompileSongbook builds the PDF derived from a .sb songbook file.
func CompileSongbook(songbook string) *Task {
	return New(KindCompile, Options{OptSongbook: songbook})
}

// Download fetches remote; an empty remote falls back to the configured one.
func Download(remote string) *Task {
	opts := Options{}
	if remote != "" {
		opts[OptRemote] = remote
	}
	return New(KindDownload, opts)
}

func ResizeCovers() *Task {
	return New(KindResizeCovers, nil)
}

func LatexLint() *Task {
	return New(KindLatexLint, nil)
}

func (t *Task) Kind() Kind {
	return t.kind
}

func (t *Task) String() string {
	return t.kind.String() + "/" + shortID(t.ID)
}

// Options returns a copy of the option set.
func (t *Task) Options() Options {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.options.clone()
}

func (t *Task) Option(name string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.options[name]
}

// Set changes an option. Setting an option withdraws any earlier
// confirmation.
func (t *Task) Set(name, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return ErrFrozen
	}
	if value == "" {
		delete(t.options, name)
	} else {
		t.options[name] = value
	}
	t.confirmed = false
	return nil
}

func (t *Task) RequiresConfirmation() bool {
	return t.kind.RequiresConfirmation()
}

// Confirm accepts the current option set.
func (t *Task) Confirm() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return ErrFrozen
	}
	t.confirmed = true
	return nil
}

func (t *Task) Confirmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.confirmed
}

func (t *Task) Frozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frozen
}

// Begin marks the task as executing and freezes its options. It fails with
// ErrTaskRunning while another execution of the same task is in flight and
// with a *ConfigError wrapping ErrNotConfirmed when confirmation is missing.
func (t *Task) Begin() error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrTaskRunning
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.RequiresConfirmation() && !t.confirmed {
		t.running.Store(false)
		return &ConfigError{Kind: t.kind, Reason: "not confirmed", Err: ErrNotConfirmed}
	}
	t.frozen = true
	return nil
}

// End releases the running mark set by Begin.
func (t *Task) End() {
	t.running.Store(false)
}

func (t *Task) Running() bool {
	return t.running.Load()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
