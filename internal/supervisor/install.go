package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firefly-engineering/modhost/internal/audit"
	"github.com/firefly-engineering/modhost/internal/config"
	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/logging"
	"github.com/firefly-engineering/modhost/internal/route"
	"github.com/firefly-engineering/modhost/internal/runtime"
	"github.com/firefly-engineering/modhost/internal/store"
)

// Install brings a module from descriptor to a running, routed container.
// On failure every acquired resource is released, the record is left
// failed, and the returned error is the step that failed.
func (s *Supervisor) Install(ctx context.Context, desc config.Descriptor) (*store.ModuleRecord, error) {
	if err := s.validator.Validate(ctx, desc); err != nil {
		var modErr *errors.ModhostError
		if errors.As(err, &modErr) {
			return nil, err
		}
		return nil, errors.ValidationFailed(desc.ID, err)
	}
	id := desc.ID

	release, ok := s.guard.acquire(id)
	if !ok {
		return nil, errors.AlreadyInstalling(id)
	}
	defer release()

	log := logging.With("component", "supervisor", "module", id)

	existing, err := s.load(ctx, id)
	switch {
	case errors.HasCode(err, errors.ExitModuleNotFound):
	case err != nil:
		return nil, err
	case !existing.State.Terminal():
		return nil, errors.ModuleExists(id, string(existing.State))
	case existing.State == store.StateFailed:
		// A failed attempt may have left resources behind.
		if err := s.clearLeftovers(ctx, existing, log); err != nil {
			return nil, err
		}
	}

	internalPorts, err := desc.InternalPorts()
	if err != nil {
		return nil, errors.ValidationFailed(id, err)
	}
	proxied, err := desc.ProxiedPort()
	if err != nil {
		return nil, errors.ValidationFailed(id, err)
	}
	caps, err := capabilities(desc)
	if err != nil {
		return nil, errors.ValidationFailed(id, err)
	}

	now := s.now()
	rec := &store.ModuleRecord{
		ModuleID:      id,
		Image:         desc.Image,
		InternalPorts: internalPorts,
		ContainerName: config.ContainerName(s.containerPrefix, id),
		InstallID:     s.newID(),
		InstalledAt:   now,
	}
	log = log.With("install", rec.InstallID)

	// The check above and this write are separate reads; another process
	// may have claimed the id in between, so the write itself is conditional.
	claimed, err := s.claim(ctx, rec, store.StatePending, store.StateReleased, store.StateFailed)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if cur, err := s.load(ctx, id); err == nil {
			return nil, errors.ModuleExists(id, string(cur.State))
		}
		return nil, errors.AlreadyInstalling(id)
	}
	s.record(audit.EventInstallStarted, rec, desc.Image)
	log.Info("install started", "image", desc.Image, "ports", internalPorts)

	var sg saga
	if err := s.install(ctx, rec, desc, proxied, caps, &sg, log); err != nil {
		return nil, s.abortInstall(ctx, rec, &sg, err, log)
	}

	s.record(audit.EventInstalled, rec, describePorts(rec.Ports))
	log.Info("module installed", "container", rec.ContainerID, "network", rec.Network, "route", rec.Route.PathPrefix)

	if loaded, err := s.load(ctx, id); err == nil {
		return loaded, nil
	}
	return rec, nil
}

// install runs the forward steps, pushing a compensation for each
// resource it acquires.
func (s *Supervisor) install(ctx context.Context, rec *store.ModuleRecord, desc config.Descriptor, proxied int, caps []route.Capability, sg *saga, log *slog.Logger) error {
	id := rec.ModuleID

	mapping, err := s.ports.Allocate(ctx, id, rec.InstallID, rec.InternalPorts)
	if err != nil {
		return err
	}
	installID := rec.InstallID
	sg.push("release ports", func(ctx context.Context) error {
		_, err := s.ports.ReleaseInstall(ctx, installID)
		return err
	})

	allocatedAt := s.now()
	bindings := make([]runtime.PortBinding, 0, len(rec.InternalPorts))
	for _, internal := range rec.InternalPorts {
		bindings = append(bindings, runtime.PortBinding{HostPort: mapping[internal], ContainerPort: internal})
		rec.Ports = append(rec.Ports, store.PortAllocation{
			ExternalPort: mapping[internal],
			InternalPort: internal,
			ModuleID:     id,
			InstallID:    rec.InstallID,
			AllocatedAt:  allocatedAt,
			Status:       store.AllocationActive,
		})
	}
	if err := s.save(ctx, rec, store.StatePortsAllocated); err != nil {
		return err
	}
	log.Debug("ports allocated", "ports", mapping)

	network, err := s.network.Resolve(ctx)
	if err != nil {
		return err
	}
	rec.Network = network

	if err := ctx.Err(); err != nil {
		return err
	}
	cid, err := s.rt.Create(ctx, runtime.CreateOptions{
		Name:    rec.ContainerName,
		Image:   rec.Image,
		Network: network,
		Ports:   bindings,
		Env:     desc.EnvList(),
		Labels: map[string]string{
			runtime.LabelModule:    id,
			runtime.LabelInstallID: rec.InstallID,
			runtime.LabelManaged:   "true",
		},
	})
	if err != nil {
		return runtimeErr("create", err)
	}
	rec.ContainerID = cid
	sg.push("remove container", func(ctx context.Context) error {
		return s.removeContainer(ctx, cid)
	})

	if err := s.save(ctx, rec, store.StateContainerStarting); err != nil {
		return err
	}
	if err := s.rt.Start(ctx, cid); err != nil {
		return runtimeErr("start", err)
	}
	if err := s.waitRunning(ctx, cid); err != nil {
		return err
	}
	log.Debug("container running", "container", cid)

	if err := ctx.Err(); err != nil {
		return err
	}
	def := route.NewDefinition(id, rec.ContainerName, proxied, caps)
	if err := s.routes.Publish(ctx, def); err != nil {
		return err
	}
	rec.Route = &def
	sg.push("remove route", func(ctx context.Context) error {
		return s.routes.Remove(ctx, id)
	})

	return s.save(ctx, rec, store.StateRunning)
}

// abortInstall unwinds sg on a detached context, marks rec failed and
// returns cause, with any compensation failure attached as secondary.
func (s *Supervisor) abortInstall(ctx context.Context, rec *store.ModuleRecord, sg *saga, cause error, log *slog.Logger) error {
	log.Warn("install failed, rolling back", "state", rec.State, "error", cause)

	cctx, cancel := s.detached(ctx)
	defer cancel()

	compErr := sg.unwind(cctx, log)

	rec.LastError = cause.Error()
	if compErr != nil {
		rec.LastError += "; rollback incomplete: " + compErr.Error()
	}
	if err := s.save(cctx, rec, store.StateFailed); err != nil {
		log.Error("failed to record install failure", "error", err)
		compErr = errors.Join(compErr, err)
	}

	s.record(audit.EventInstallFailed, rec, cause.Error())
	if compErr != nil {
		s.record(audit.EventCompensationFailed, rec, compErr.Error())
		return errors.WithSecondary(cause, errors.ReconciliationRequired(rec.ModuleID, compErr))
	}
	return cause
}

// waitRunning polls the container until it runs, exits, or the start
// timeout elapses.
func (s *Supervisor) waitRunning(ctx context.Context, cid string) error {
	wctx, cancel := context.WithTimeout(ctx, s.startTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	last := runtime.StatusUnknown
	for {
		info, err := s.rt.Inspect(wctx, cid)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if wctx.Err() == nil {
				return runtimeErr("inspect", err)
			}
		case info.Status == runtime.StatusRunning:
			return nil
		case info.Status.Exited():
			return errors.ContainerRuntime("start", fmt.Errorf("container %s exited with code %d", cid, info.ExitCode))
		case info.Status == runtime.StatusNotFound:
			return errors.ContainerRuntime("start", fmt.Errorf("container %s disappeared", cid))
		default:
			last = info.Status
		}

		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.ContainerRuntime("start", fmt.Errorf("container %s not running after %s (status %s)", cid, s.startTimeout, last))
		case <-ticker.C:
		}
	}
}

// removeContainer stops then force-removes handle. Remove runs even when
// stop fails.
func (s *Supervisor) removeContainer(ctx context.Context, handle string) error {
	stopErr := s.rt.Stop(ctx, handle, s.stopTimeout)
	if stopErr != nil {
		stopErr = runtimeErr("stop", stopErr)
	}
	if err := s.rt.Remove(ctx, handle); err != nil {
		return errors.Join(stopErr, runtimeErr("remove", err))
	}
	return nil
}

func describePorts(ports []store.PortAllocation) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, fmt.Sprintf("%d->%d", p.InternalPort, p.ExternalPort))
	}
	return strings.Join(parts, ",")
}
