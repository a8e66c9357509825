package runner

import (
	"sync"
	"time"
)

// Progress tracks how far an execution is through its invocations.
type Progress struct {
	mu           sync.RWMutex
	total        int
	done         int
	failed       int
	current      string
	lastActivity time.Time
	changed      chan struct{}
}

type ProgressSnapshot struct {
	Total        int
	Done         int
	Failed       int
	Current      string
	LastActivity time.Time
}

func (s ProgressSnapshot) Remaining() int {
	return s.Total - s.Done
}

func (s ProgressSnapshot) Fraction() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Done) / float64(s.Total)
}

func newProgress(total int) *Progress {
	return &Progress{
		total:        total,
		lastActivity: time.Now(),
		changed:      make(chan struct{}),
	}
}

func (p *Progress) begin(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = label
	p.touchLocked()
}

func (p *Progress) finish(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if !ok {
		p.failed++
	}
	p.current = ""
	p.touchLocked()
}

func (p *Progress) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = ""
	p.touchLocked()
}

func (p *Progress) touchLocked() {
	p.lastActivity = time.Now()
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		Total:        p.total,
		Done:         p.done,
		Failed:       p.failed,
		Current:      p.current,
		LastActivity: p.lastActivity,
	}
}

// Changed returns a channel that is closed at the next progress update.
func (p *Progress) Changed() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.changed
}
