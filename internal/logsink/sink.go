// Package logsink records the output of external processes as an ordered,
// append-only transcript. Every line carries the task and process handle
// that produced it, so output of concurrent tasks stays attributable.
package logsink

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amarbel-llc/songbook/internal/subprocess"
)

type Entry struct {
	Seq    uint64
	Time   time.Time
	Task   string
	Handle string
	Stream subprocess.Stream
	Text   string
}

// Source names the producer of the line as task/handle.
func (e Entry) Source() string {
	if e.Handle == "" {
		return e.Task
	}
	return e.Task + "/" + e.Handle
}

// Listener observes lines as they are appended. Listeners run in append
// order and must not append to the sink they listen on.
type Listener func(Entry)

type Sink struct {
	notifyMu sync.Mutex

	mu        sync.RWMutex
	entries   []Entry
	delivered int
	listeners map[int]Listener
	nextID    int
	now       func() time.Time
}

func New() *Sink {
	return &Sink{
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// Append records text as one line, or as several consecutive lines when it
// contains newlines. The lines of one call are never interleaved with lines
// from a concurrent call.
func (s *Sink) Append(task, handle string, stream subprocess.Stream, text string) []Entry {
	parts := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	added := make([]Entry, 0, len(parts))
	for _, part := range parts {
		e := Entry{
			Seq:    uint64(len(s.entries)) + 1,
			Time:   s.now(),
			Task:   task,
			Handle: handle,
			Stream: stream,
			Text:   strings.TrimSuffix(part, "\r"),
		}
		s.entries = append(s.entries, e)
		added = append(added, e)
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, e := range added {
		for _, l := range listeners {
			l(e)
		}
	}

	return added
}

// LineFunc adapts the sink to a process handle's output callback.
func (s *Sink) LineFunc(task, handle string) subprocess.LineFunc {
	return func(stream subprocess.Stream, line string) {
		s.Append(task, handle, stream, line)
	}
}

// Listen registers fn and returns a function that unregisters it.
func (s *Sink) Listen(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Sink) listenersLocked() []Listener {
	if len(s.listeners) == 0 {
		return nil
	}
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id]
	}
	return out
}

func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Lines returns a copy of the whole transcript in append order.
func (s *Sink) Lines() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Sink) ForTask(task string) []Entry {
	return s.filter(func(e Entry) bool { return e.Task == task })
}

func (s *Sink) ForHandle(handle string) []Entry {
	return s.filter(func(e Entry) bool { return e.Handle == handle })
}

func (s *Sink) filter(keep func(Entry) bool) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Undelivered returns the lines appended since the previous call and moves
// the delivery cursor past them.
func (s *Sink) Undelivered() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.entries[s.delivered:]
	out := make([]Entry, len(pending))
	copy(out, pending)
	s.delivered = len(s.entries)
	return out
}

// WriteTranscript renders the transcript, one line per entry.
func (s *Sink) WriteTranscript(w io.Writer) error {
	for _, e := range s.Lines() {
		if _, err := fmt.Fprintln(w, FormatEntry(e)); err != nil {
			return fmt.Errorf("writing transcript: %w", err)
		}
	}
	return nil
}

func FormatEntry(e Entry) string {
	return fmt.Sprintf("%s [%s] %s: %s", e.Time.Format(time.RFC3339), e.Source(), e.Stream, e.Text)
}
