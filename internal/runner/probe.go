package runner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amarbel-llc/songbook/internal/config"
	"github.com/amarbel-llc/songbook/internal/subprocess"
)

const maxConcurrentProbes = 4

type ProbeStatus int

const (
	ProbeFound ProbeStatus = iota
	ProbeMissing
	ProbeFailed
)

func (s ProbeStatus) String() string {
	switch s {
	case ProbeFound:
		return "found"
	case ProbeMissing:
		return "missing"
	default:
		return "failed"
	}
}

type ProbeResult struct {
	Name     string
	Program  string
	Status   ProbeStatus
	Version  string
	ExitCode int
	Err      error
}

// Probe runs each tool's version command and reports whether the tool is
// installed. Results are in the order of probes. Probe output is not
// written to the log sink.
func (r *Runner) Probe(ctx context.Context, probes []config.Probe) []ProbeResult {
	results := make([]ProbeResult, len(probes))

	var g errgroup.Group
	g.SetLimit(maxConcurrentProbes)
	for i, p := range probes {
		i, p := i, p
		g.Go(func() error {
			results[i] = r.probe(ctx, p)
			r.metrics.ObserveProbe(p.Name, results[i].Status.String())
			return nil
		})
	}
	g.Wait()

	return results
}

func (r *Runner) probe(ctx context.Context, p config.Probe) ProbeResult {
	res := ProbeResult{Name: p.Name, Program: p.Program}

	var re *regexp.Regexp
	if p.Pattern != "" {
		compiled, err := regexp.Compile(p.Pattern)
		if err != nil {
			res.Status = ProbeFailed
			res.Err = fmt.Errorf("probe %s: invalid pattern: %w", p.Name, err)
			return res
		}
		re = compiled
	}

	h := subprocess.NewHandle(uuid.NewString(), "probe "+p.Name, subprocess.Spec{
		Program: p.Program,
		Args:    p.Args,
	})
	r.pool.Track(h)

	var mu sync.Mutex
	var lines []string
	if err := h.Start(ctx, func(_ subprocess.Stream, line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	}); err != nil {
		// The handle is terminal; its outcome carries the same error.
		r.logger.Debug().Err(err).Str("probe", p.Name).Str("program", p.Program).Msg("probe not started")
	}
	outcome := h.Wait()

	res.ExitCode = outcome.ExitCode
	switch outcome.State {
	case subprocess.StateToolNotFound:
		res.Status = ProbeMissing
		res.Err = outcome.Err
		return res
	case subprocess.StateSucceeded:
		res.Status = ProbeFound
	default:
		res.Status = ProbeFailed
		res.Err = outcome.Err
	}

	mu.Lock()
	output := strings.Join(lines, "\n")
	mu.Unlock()
	res.Version = extractVersion(re, output)

	r.logger.Debug().
		Str("probe", p.Name).
		Str("status", res.Status.String()).
		Str("version", res.Version).
		Msg("tool probed")

	return res
}

func extractVersion(re *regexp.Regexp, output string) string {
	if re == nil {
		for _, line := range strings.Split(output, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				return line
			}
		}
		return ""
	}

	m := re.FindStringSubmatch(output)
	switch {
	case len(m) > 1:
		return strings.TrimSpace(m[1])
	case len(m) == 1:
		return strings.TrimSpace(m[0])
	default:
		return ""
	}
}
