package supervisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firefly-engineering/modhost/internal/errors"
)

// compensation undoes one acquired resource.
type compensation struct {
	step string
	undo func(ctx context.Context) error
}

// saga is the stack of compensations for an install in progress.
type saga struct {
	stack []compensation
}

func (s *saga) push(step string, undo func(ctx context.Context) error) {
	s.stack = append(s.stack, compensation{step: step, undo: undo})
}

// unwind runs every compensation once, newest first. Failures are logged
// and joined; a failing step never stops the ones after it.
func (s *saga) unwind(ctx context.Context, log *slog.Logger) error {
	var errs []error
	for i := len(s.stack) - 1; i >= 0; i-- {
		c := s.stack[i]
		if err := c.undo(ctx); err != nil {
			log.Warn("compensation failed", "step", c.step, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.step, err))
			continue
		}
		log.Debug("compensated", "step", c.step)
	}
	s.stack = nil
	return errors.Join(errs...)
}
