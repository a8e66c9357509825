package subprocess

import (
	"sync"
	"time"
)

// Pool keeps every handle it has been given, in creation order, and the
// subset that has not yet reached a terminal state.
type Pool struct {
	mu      sync.RWMutex
	active  map[string]*Handle
	history []*Handle
}

func NewPool() *Pool {
	return &Pool{
		active: make(map[string]*Handle),
	}
}

// Track registers h. The handle is dropped from the active set once it is
// done, so Track must be followed by a call to h.Start.
func (p *Pool) Track(h *Handle) {
	p.mu.Lock()
	p.active[h.ID] = h
	p.history = append(p.history, h)
	p.mu.Unlock()

	go func() {
		<-h.Done()
		p.mu.Lock()
		delete(p.active, h.ID)
		p.mu.Unlock()
	}()
}

func (p *Pool) Get(id string) (*Handle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, h := range p.history {
		if h.ID == id {
			return h, true
		}
	}
	return nil, false
}

// History returns all tracked handles in the order they were tracked.
func (p *Pool) History() []*Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Handle, len(p.history))
	copy(out, p.history)
	return out
}

// Active returns the handles that have not reached a terminal state, in
// tracking order.
func (p *Pool) Active() []*Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Handle
	for _, h := range p.history {
		if _, ok := p.active[h.ID]; ok {
			out = append(out, h)
		}
	}
	return out
}

func (p *Pool) CancelAll() {
	for _, h := range p.Active() {
		h.Cancel()
	}
}

func (p *Pool) Status() []HandleStatus {
	handles := p.History()

	statuses := make([]HandleStatus, 0, len(handles))
	for _, h := range handles {
		status := HandleStatus{
			ID:       h.ID,
			Label:    h.Label,
			Command:  h.Spec.String(),
			State:    h.State().String(),
			Duration: h.Duration(),
		}
		if h.State().Terminal() {
			outcome := h.Outcome()
			status.ExitCode = outcome.ExitCode
			if outcome.Err != nil {
				status.Error = outcome.Err.Error()
			}
		}
		statuses = append(statuses, status)
	}

	return statuses
}

type HandleStatus struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Command  string        `json:"command"`
	State    string        `json:"state"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}
