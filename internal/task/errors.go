package task

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfirmed   = errors.New("task requires confirmation")
	ErrFrozen         = errors.New("task options are frozen")
	ErrTaskRunning    = errors.New("task is already running")
	ErrWrongExtension = errors.New("songbook file must have the .sb extension")
	ErrWrongDirectory = errors.New("songbook file must be in the working directory")
	ErrMissingOption  = errors.New("required option is missing")
	ErrInvalidOption  = errors.New("invalid option")
	ErrWorkingDir     = errors.New("invalid working directory")
)

// ConfigError is raised before any process is spawned: a task can not run
// with its current options or environment.
type ConfigError struct {
	Kind   Kind
	Option string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := e.Kind.String()
	if e.Option != "" {
		msg += ": option " + e.Option
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		if e.Reason == "" {
			msg += ": " + e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s (%v)", msg, e.Err)
		}
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
