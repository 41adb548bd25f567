package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
)

// DefaultWaitDelay bounds how long a cancelled command may keep its
// output pipes open. nginx and docker both fork helpers that can outlive
// the parent.
const DefaultWaitDelay = 2 * time.Second

// CommandError describes a command that ran but did not succeed.
type CommandError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// OSExecutor runs commands with os/exec.
type OSExecutor struct {
	// Env is appended to the inherited environment.
	Env []string

	// WaitDelay is passed to exec.Cmd.WaitDelay.
	WaitDelay time.Duration
}

// NewOSExecutor returns an executor that forces the C locale, so engine
// and proxy error text can be matched reliably.
func NewOSExecutor() *OSExecutor {
	return &OSExecutor{
		Env:       []string{"LC_ALL=C"},
		WaitDelay: DefaultWaitDelay,
	}
}

func (e *OSExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	cmd.WaitDelay = e.WaitDelay

	output, err := cmd.CombinedOutput()
	if err == nil {
		return output, nil
	}

	cmdErr := &CommandError{
		Command:  shellquote.Join(append([]string{name}, args...)...),
		ExitCode: -1,
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		cmdErr.ExitCode = exitErr.ExitCode()
	}
	return output, cmdErr
}

var _ CommandExecutor = (*OSExecutor)(nil)
