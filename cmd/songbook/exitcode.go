package main

import (
	"errors"

	"github.com/amarbel-llc/songbook/internal/runner"
	"github.com/amarbel-llc/songbook/internal/subprocess"
	"github.com/amarbel-llc/songbook/internal/task"
)

// Exit codes for consistent error handling across the CLI
const (
	exitSuccess      = 0
	exitFailed       = 1
	exitConfig       = 2
	exitToolNotFound = 3
	exitLintFindings = 4
)

// resultError carries a terminal task state that has already been printed.
type resultError struct {
	code int
	msg  string
}

func (e *resultError) Error() string {
	return e.msg
}

func resultErr(res runner.Result) error {
	code := resultCode(res)
	if code == exitSuccess {
		return nil
	}
	return &resultError{code: code, msg: res.String()}
}

func resultCode(res runner.Result) int {
	switch {
	case res.State == subprocess.StateSucceeded:
		return exitSuccess
	case res.State == subprocess.StateToolNotFound:
		return exitToolNotFound
	case res.Lint == runner.LintFindings:
		return exitLintFindings
	default:
		return exitFailed
	}
}

func isReported(err error) bool {
	var re *resultError
	return errors.As(err, &re)
}

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}

	var re *resultError
	if errors.As(err, &re) {
		return re.code
	}

	var ce *configError
	if task.IsConfigError(err) || errors.As(err, &ce) {
		return exitConfig
	}

	return exitFailed
}

// configError marks problems with the config file, flags or working
// directory that are found before any task is built.
type configError struct {
	err error
}

func (e *configError) Error() string {
	return e.err.Error()
}

func (e *configError) Unwrap() error {
	return e.err
}
