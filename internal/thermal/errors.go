package thermal

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when reading with an Unavailable strategy.
var ErrUnavailable = errors.New("thermal: no temperature source available")

// ErrReadPending is returned while an earlier thermal zone read that timed
// out has still not come back from the kernel.
var ErrReadPending = errors.New("thermal: previous thermal zone read still pending")

// ReadError reports a thermal zone file that is missing or unreadable.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read thermal zone %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// CommandError reports a vendor command that failed to run or exited
// non-zero. ExitCode is -1 when the process never produced an exit status.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ParseError reports command output without the expected "=<value>'" shape.
type ParseError struct {
	Command string
	Output  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid temperature format from %q: %q", e.Command, e.Output)
}
