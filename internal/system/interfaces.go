// Package system runs the external programs modhost drives: the
// container engine CLI and the nginx validate/reload commands.
package system

import "context"

// CommandExecutor runs one external command to completion.
type CommandExecutor interface {
	// Execute runs name with args and returns its combined output. A
	// non-zero exit is reported as a *CommandError; output is returned
	// either way.
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor returns an executor backed by the operating system.
func DefaultExecutor() CommandExecutor {
	return NewOSExecutor()
}
