package supervisor

import (
	"context"
	"fmt"

	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/health"
	"github.com/firefly-engineering/modhost/internal/runtime"
	"github.com/firefly-engineering/modhost/internal/store"
)

// StatusReport describes one module as seen by Status.
type StatusReport struct {
	Module store.ModuleRecord `json:"module"`
	Status health.Status      `json:"status"`

	// Probed is set when live checks were made.
	Probed     bool                   `json:"probed"`
	Container  *runtime.ContainerInfo `json:"container,omitempty"`
	ProbeError string                 `json:"probeError,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
}

// Status reports a module's health. Without probe it is derived from the
// stored state alone; with probe the container is inspected and the
// route's health path requested. Stored state is never modified.
func (s *Supervisor) Status(ctx context.Context, moduleID string, probe bool) (*StatusReport, error) {
	rec, err := s.load(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{Module: *rec}
	if !probe || rec.State != store.StateRunning {
		report.Status = health.Summary(rec.State, false, false, nil)
		return report, nil
	}

	report.Probed = true
	running := false
	var probeErr error

	info, err := s.rt.Inspect(ctx, containerHandle(rec, s.containerPrefix))
	if err != nil {
		probeErr = runtimeErr("inspect", err)
	} else {
		report.Container = info
		running = info.Status == runtime.StatusRunning
		if running {
			report.Uptime = health.Uptime(info.StartedAt, s.now())
		}
	}

	if running && probeErr == nil {
		switch {
		case s.prober == nil:
			probeErr = errors.New(errors.ExitGeneralError, "no health prober configured")
		case rec.Route == nil:
			probeErr = errors.New(errors.ExitGeneralError, fmt.Sprintf("module %s has no recorded route", moduleID))
		default:
			probeErr = s.prober.Probe(ctx, rec.Route.HealthPath)
		}
	}
	if probeErr != nil {
		report.ProbeError = probeErr.Error()
	}

	report.Status = health.Summary(rec.State, true, running, probeErr)
	if report.Container == nil {
		// The runtime could not say; the container may still be up.
		report.Status = health.StatusUnhealthy
	}
	return report, nil
}
