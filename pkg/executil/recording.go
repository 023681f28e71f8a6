package executil

import (
	"context"
	"strings"
	"sync"
)

// RecordedCommand captures a command that was executed.
type RecordedCommand struct {
	Dir  string
	Cmd  string
	Args []string
}

// String renders the command line, e.g. "git rev-parse HEAD".
func (c RecordedCommand) String() string {
	return strings.Join(append([]string{c.Cmd}, c.Args...), " ")
}

// RecordingExecutor captures commands for testing.
// Configure Outputs and Errors maps to control return values, or Handler for
// per-invocation responses.
type RecordingExecutor struct {
	mu       sync.Mutex
	Commands []RecordedCommand

	// Outputs maps command names to their output.
	// Key is the command name (e.g., "git").
	Outputs map[string][]byte

	// Errors maps command names to their error.
	Errors map[string]error

	// Handler, when set, answers every command and Outputs/Errors are ignored.
	Handler func(cmd RecordedCommand) ([]byte, error)
}

var _ Executor = (*RecordingExecutor)(nil)

// Run records the command and returns configured output/error.
func (e *RecordingExecutor) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	return e.record("", cmd, args...)
}

// RunDir records the command with directory and returns configured output/error.
func (e *RecordingExecutor) RunDir(ctx context.Context, dir, cmd string, args ...string) ([]byte, error) {
	return e.record(dir, cmd, args...)
}

func (e *RecordingExecutor) record(dir, cmd string, args ...string) ([]byte, error) {
	e.mu.Lock()
	rc := RecordedCommand{
		Dir:  dir,
		Cmd:  cmd,
		Args: args,
	}
	e.Commands = append(e.Commands, rc)
	handler := e.Handler
	e.mu.Unlock()

	if handler != nil {
		return handler(rc)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []byte
	var err error

	if e.Outputs != nil {
		out = e.Outputs[cmd]
	}
	if e.Errors != nil {
		err = e.Errors[cmd]
	}

	return out, err
}

// Lines returns every recorded command rendered with String.
func (e *RecordingExecutor) Lines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Commands))
	for i, c := range e.Commands {
		out[i] = c.String()
	}
	return out
}

// Reset clears recorded commands.
func (e *RecordingExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Commands = nil
}
