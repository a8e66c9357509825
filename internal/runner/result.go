package runner

import (
	"fmt"
	"time"

	"github.com/amarbel-llc/songbook/internal/subprocess"
	"github.com/amarbel-llc/songbook/internal/task"
)

// LintVerdict separates "the checker ran and found issues" from "the
// checker could not do its job".
type LintVerdict int

const (
	LintNotApplicable LintVerdict = iota
	LintClean
	LintFindings
	LintError
)

func (v LintVerdict) String() string {
	switch v {
	case LintClean:
		return "clean"
	case LintFindings:
		return "findings"
	case LintError:
		return "error"
	default:
		return "n/a"
	}
}

// Result is the terminal report of one task execution.
type Result struct {
	TaskID      string
	ExecutionID string
	Kind        task.Kind

	State    subprocess.State
	ExitCode int
	Signal   string
	Canceled bool

	// Handles lists the IDs of the process handles created, in order.
	Handles []string

	Images       int
	FailedImages []string

	Lint LintVerdict
	Err  error

	Started time.Time
	Ended   time.Time
}

func (r Result) Succeeded() bool {
	return r.State == subprocess.StateSucceeded
}

func (r Result) Duration() time.Duration {
	return r.Ended.Sub(r.Started)
}

func (r Result) String() string {
	switch r.State {
	case subprocess.StateFailed:
		if r.Canceled {
			return fmt.Sprintf("%s: canceled", r.Kind)
		}
		return fmt.Sprintf("%s: failed with exit code %d", r.Kind, r.ExitCode)
	case subprocess.StateCrashed:
		if r.Signal != "" {
			return fmt.Sprintf("%s: crashed (%s)", r.Kind, r.Signal)
		}
		return fmt.Sprintf("%s: crashed", r.Kind)
	default:
		return fmt.Sprintf("%s: %s", r.Kind, r.State)
	}
}
