package route

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/firefly-engineering/modhost/internal/logging"
	"github.com/firefly-engineering/modhost/internal/system"
)

// Controller validates and reloads the reverse proxy.
type Controller interface {
	// Validate syntax-checks the configuration on disk without applying it.
	Validate(ctx context.Context) error

	// Reload applies the configuration on disk without dropping connections.
	Reload(ctx context.Context) error
}

// NginxController drives nginx through configured shell commands.
type NginxController struct {
	exec            system.CommandExecutor
	validateArgs    []string
	reloadArgs      []string
	validateTimeout time.Duration
	reloadTimeout   time.Duration
}

// NewNginxController parses the validate and reload command lines.
func NewNginxController(exec system.CommandExecutor, validateCommand, reloadCommand string, validateTimeout, reloadTimeout time.Duration) (*NginxController, error) {
	validateArgs, err := shellquote.Split(validateCommand)
	if err != nil || len(validateArgs) == 0 {
		return nil, fmt.Errorf("invalid validate command %q: %v", validateCommand, err)
	}
	reloadArgs, err := shellquote.Split(reloadCommand)
	if err != nil || len(reloadArgs) == 0 {
		return nil, fmt.Errorf("invalid reload command %q: %v", reloadCommand, err)
	}

	if exec == nil {
		exec = system.DefaultExecutor()
	}

	return &NginxController{
		exec:            exec,
		validateArgs:    validateArgs,
		reloadArgs:      reloadArgs,
		validateTimeout: validateTimeout,
		reloadTimeout:   reloadTimeout,
	}, nil
}

// Validate runs the validate command (nginx -t).
func (c *NginxController) Validate(ctx context.Context) error {
	return c.run(ctx, c.validateArgs, c.validateTimeout)
}

// Reload runs the reload command (nginx -s reload).
func (c *NginxController) Reload(ctx context.Context) error {
	return c.run(ctx, c.reloadArgs, c.reloadTimeout)
}

func (c *NginxController) run(ctx context.Context, args []string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdStr := shellquote.Join(args...)
	logging.Debug("running proxy command", "command", cmdStr, "timeout", timeout)

	output, err := c.exec.Execute(ctx, args[0], args[1:]...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s", cmdStr, timeout)
		}
		var cmdErr *system.CommandError
		if errors.As(err, &cmdErr) {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
		}
		return fmt.Errorf("%s: %w: %s", cmdStr, err, strings.TrimSpace(string(output)))
	}
	return nil
}

var _ Controller = (*NginxController)(nil)
