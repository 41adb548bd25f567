package supervisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firefly-engineering/modhost/internal/audit"
	"github.com/firefly-engineering/modhost/internal/config"
	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/logging"
	"github.com/firefly-engineering/modhost/internal/store"
)

// Uninstall removes the module's route, container and ports, in that
// order. Every step runs even if an earlier one fails; the record ends
// released when all succeeded and failed otherwise, in which case the
// step failures are returned as ReconciliationRequired.
func (s *Supervisor) Uninstall(ctx context.Context, moduleID string) error {
	if err := config.ValidateModuleID(moduleID); err != nil {
		return errors.ValidationFailed(moduleID, err)
	}

	release, ok := s.guard.acquire(moduleID)
	if !ok {
		return errors.AlreadyInstalling(moduleID)
	}
	defer release()

	rec, err := s.load(ctx, moduleID)
	if err != nil {
		return err
	}
	if rec.State == store.StateReleased {
		return errors.ModuleNotFound(moduleID)
	}

	log := logging.With("component", "supervisor", "module", moduleID, "install", rec.InstallID)
	log.Info("uninstall started", "state", rec.State)

	// Teardown must finish even if the caller goes away.
	tctx, cancel := s.detached(ctx)
	defer cancel()

	// Only move on from the state just read; a change in between means
	// another process is working on the module.
	claimed, err := s.claim(tctx, rec, store.StateUninstalling, rec.State)
	if err != nil {
		return err
	}
	if !claimed {
		return errors.AlreadyInstalling(moduleID)
	}

	tearErr := s.teardown(tctx, rec, log)
	if tearErr == nil {
		rec.LastError = ""
		if err := s.save(tctx, rec, store.StateReleased); err != nil {
			tearErr = err
		}
	}
	if tearErr != nil {
		rec.LastError = "uninstall incomplete: " + tearErr.Error()
		if err := s.save(tctx, rec, store.StateFailed); err != nil {
			log.Error("failed to record uninstall failure", "error", err)
		}
		s.record(audit.EventUninstallFailed, rec, tearErr.Error())
		return errors.ReconciliationRequired(moduleID, tearErr)
	}

	s.record(audit.EventUninstalled, rec, "")
	log.Info("module uninstalled")
	return nil
}

// teardown removes the route, the container and the port allocations of
// rec. Each step runs regardless of the others; failures are joined.
func (s *Supervisor) teardown(ctx context.Context, rec *store.ModuleRecord, log *slog.Logger) error {
	var errs []error

	if err := s.routes.Remove(ctx, rec.ModuleID); err != nil {
		log.Warn("teardown step failed", "step", "remove route", "error", err)
		errs = append(errs, fmt.Errorf("remove route: %w", err))
	}

	if handle := containerHandle(rec, s.containerPrefix); handle != "" {
		if err := s.removeContainer(ctx, handle); err != nil {
			log.Warn("teardown step failed", "step", "remove container", "error", err)
			errs = append(errs, fmt.Errorf("remove container: %w", err))
		}
	}

	if n, err := s.ports.Release(ctx, rec.ModuleID); err != nil {
		log.Warn("teardown step failed", "step", "release ports", "error", err)
		errs = append(errs, fmt.Errorf("release ports: %w", err))
	} else if n > 0 {
		log.Debug("ports released", "count", n)
	}

	return errors.Join(errs...)
}

// clearLeftovers tears down whatever a failed attempt left behind before
// a new install reuses the id.
func (s *Supervisor) clearLeftovers(ctx context.Context, rec *store.ModuleRecord, log *slog.Logger) error {
	tctx, cancel := s.detached(ctx)
	defer cancel()

	if err := s.teardown(tctx, rec, log); err != nil {
		return errors.ReconciliationRequired(rec.ModuleID, err)
	}
	return nil
}

// containerHandle prefers the recorded container id, then the name.
func containerHandle(rec *store.ModuleRecord, prefix string) string {
	switch {
	case rec.ContainerID != "":
		return rec.ContainerID
	case rec.ContainerName != "":
		return rec.ContainerName
	default:
		return config.ContainerName(prefix, rec.ModuleID)
	}
}
