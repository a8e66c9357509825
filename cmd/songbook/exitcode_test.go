package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/amarbel-llc/songbook/internal/runner"
	"github.com/amarbel-llc/songbook/internal/subprocess"
	"github.com/amarbel-llc/songbook/internal/task"
)

func TestExitCode(t *testing.T) {
	cfgErr := &task.ConfigError{Kind: task.KindDownload, Err: task.ErrNotConfirmed}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: exitSuccess},
		{name: "plain error", err: errors.New("boom"), want: exitFailed},
		{name: "task config error", err: cfgErr, want: exitConfig},
		{name: "wrapped task config error", err: fmt.Errorf("step 1: %w", cfgErr), want: exitConfig},
		{name: "cli config error", err: &configError{err: errors.New("bad flag")}, want: exitConfig},
		{name: "result error", err: &resultError{code: exitLintFindings}, want: exitLintFindings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResultCode(t *testing.T) {
	tests := []struct {
		name string
		res  runner.Result
		want int
	}{
		{name: "succeeded", res: runner.Result{State: subprocess.StateSucceeded}, want: exitSuccess},
		{name: "failed", res: runner.Result{State: subprocess.StateFailed, ExitCode: 2}, want: exitFailed},
		{name: "crashed", res: runner.Result{State: subprocess.StateCrashed}, want: exitFailed},
		{name: "canceled", res: runner.Result{State: subprocess.StateFailed, Canceled: true}, want: exitFailed},
		{name: "tool not found", res: runner.Result{State: subprocess.StateToolNotFound}, want: exitToolNotFound},
		{name: "lint findings", res: runner.Result{Kind: task.KindLatexLint, State: subprocess.StateFailed, Lint: runner.LintFindings}, want: exitLintFindings},
		{name: "lint error", res: runner.Result{Kind: task.KindLatexLint, State: subprocess.StateFailed, Lint: runner.LintError}, want: exitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resultCode(tt.res); got != tt.want {
				t.Errorf("resultCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
