package ffmpeg

import (
	"errors"
	"fmt"
)

// ErrorKind classifies how a supervised subprocess failed.
type ErrorKind string

const (
	// ErrorKindLaunch means the binary could not be started at all.
	ErrorKindLaunch ErrorKind = "launch"
	// ErrorKindTimeout means the process was force-killed after exceeding
	// its deadline.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindExit means the process ran to completion with a non-zero
	// exit code.
	ErrorKindExit ErrorKind = "exit"
)

// ProcessError describes a failed subprocess run. Callers can distinguish
// launch failures, timeouts, and non-zero exits via Kind or the Is* helpers.
type ProcessError struct {
	Kind     ErrorKind
	TaskKey  string
	Binary   string
	ExitCode int
	Stderr   []string
	Err      error
}

func (e *ProcessError) Error() string {
	switch e.Kind {
	case ErrorKindLaunch:
		return fmt.Sprintf("launching %s (%s): %v", e.Binary, e.TaskKey, e.Err)
	case ErrorKindTimeout:
		return fmt.Sprintf("%s (%s) killed after timeout", e.Binary, e.TaskKey)
	default:
		return fmt.Sprintf("%s (%s) exited with code %d", e.Binary, e.TaskKey, e.ExitCode)
	}
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a subprocess timeout.
func IsTimeout(err error) bool {
	var pe *ProcessError
	return errors.As(err, &pe) && pe.Kind == ErrorKindTimeout
}

// IsLaunchFailure reports whether err is a subprocess launch failure.
func IsLaunchFailure(err error) bool {
	var pe *ProcessError
	return errors.As(err, &pe) && pe.Kind == ErrorKindLaunch
}
