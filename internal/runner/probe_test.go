package runner

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarbel-llc/songbook/internal/config"
	"github.com/amarbel-llc/songbook/internal/metrics"
)

func TestProbe(t *testing.T) {
	f := newFixture(t)
	_, m := metrics.NewRegistry()

	lilypond := writeScript(t, f.bin, "lilypond", `echo "GNU LilyPond 2.24.3 (running Guile 2.2)"; echo ""; echo "Copyright"`)
	broken := writeScript(t, f.bin, "pdflatex", `echo "segfault" >&2; exit 1`)
	plain := writeScript(t, f.bin, "python3", `echo ""; echo "Python 3.12.1"`)

	probes := []config.Probe{
		{Name: "lilypond", Program: lilypond, Args: []string{"--version"}, Pattern: `GNU LilyPond ([^\n]+)`},
		{Name: "git", Program: filepath.Join(f.bin, "git"), Args: []string{"--version"}},
		{Name: "pdflatex", Program: broken, Args: []string{"--version"}, Pattern: `pdfTeX ([^\n]+)`},
		{Name: "python", Program: plain, Args: []string{"--version"}},
		{Name: "bad", Program: plain, Pattern: "("},
	}

	results := f.runner(WithMetrics(m)).Probe(context.Background(), probes)
	require.Len(t, results, 5)

	assert.Equal(t, "lilypond", results[0].Name)
	assert.Equal(t, ProbeFound, results[0].Status)
	assert.Equal(t, "2.24.3 (running Guile 2.2)", results[0].Version)

	assert.Equal(t, ProbeMissing, results[1].Status)
	assert.Error(t, results[1].Err)

	assert.Equal(t, ProbeFailed, results[2].Status)
	assert.Equal(t, 1, results[2].ExitCode)
	assert.Empty(t, results[2].Version)

	assert.Equal(t, ProbeFound, results[3].Status)
	assert.Equal(t, "Python 3.12.1", results[3].Version)

	assert.Equal(t, ProbeFailed, results[4].Status)
	assert.Error(t, results[4].Err)

	assert.Zero(t, f.sink.Len())
	assert.Len(t, f.pool.History(), 4)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ToolProbes.WithLabelValues("git", "missing")))
}

func TestProbe_MissingToolIsLogged(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	missing := filepath.Join(f.bin, "convert")
	results := f.runner(WithLogger(logger)).Probe(context.Background(), []config.Probe{
		{Name: "imagemagick", Program: missing, Args: []string{"--version"}},
	})
	require.Len(t, results, 1)
	assert.Equal(t, ProbeMissing, results[0].Status)

	assert.Contains(t, buf.String(), `"message":"probe not started"`)
	assert.Contains(t, buf.String(), `"probe":"imagemagick"`)
}

func TestExtractVersion(t *testing.T) {
	re := regexp.MustCompile(`git version ([^\n]+)`)
	assert.Equal(t, "2.43.0", extractVersion(re, "git version 2.43.0\n"))
	assert.Empty(t, extractVersion(re, "nothing here"))

	whole := regexp.MustCompile(`\d+\.\d+`)
	assert.Equal(t, "4.4", extractVersion(whole, "GNU Make 4.4"))

	assert.Equal(t, "first", extractVersion(nil, "\n  first  \nsecond"))
}

func TestProbeStatus_String(t *testing.T) {
	assert.Equal(t, "found", ProbeFound.String())
	assert.Equal(t, "missing", ProbeMissing.String())
	assert.Equal(t, "failed", ProbeFailed.String())
}
