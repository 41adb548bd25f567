package supervisor

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/health"
	"github.com/firefly-engineering/modhost/internal/runtime"
	"github.com/firefly-engineering/modhost/internal/store"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name       string
		probe      bool
		setup      func(f *fixture)
		wantStatus health.Status
		wantProbed bool
	}{
		{
			name:       "running without probe",
			probe:      false,
			wantStatus: health.StatusHealthy,
		},
		{
			name:       "running and healthy",
			probe:      true,
			wantStatus: health.StatusHealthy,
			wantProbed: true,
		},
		{
			name:  "health endpoint failing",
			probe: true,
			setup: func(f *fixture) {
				f.prober.setErr(fmt.Errorf("502 Bad Gateway"))
			},
			wantStatus: health.StatusUnhealthy,
			wantProbed: true,
		},
		{
			name:  "container stopped",
			probe: true,
			setup: func(f *fixture) {
				_ = f.rt.Stop(context.Background(), "modhost-m1", 0)
			},
			wantStatus: health.StatusStopped,
			wantProbed: true,
		},
		{
			name:  "runtime unreachable",
			probe: true,
			setup: func(f *fixture) {
				f.rt.SetError("inspect", fmt.Errorf("cannot connect to the docker daemon"))
			},
			wantStatus: health.StatusUnhealthy,
			wantProbed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, defaultPorts())
			f.mustInstall(t, descriptor("m1"))
			if tt.setup != nil {
				tt.setup(f)
			}

			report, err := f.sup.Status(context.Background(), "m1", tt.probe)
			if err != nil {
				t.Fatalf("Status failed: %v", err)
			}
			if report.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q (probe error %q)", report.Status, tt.wantStatus, report.ProbeError)
			}
			if report.Probed != tt.wantProbed {
				t.Errorf("Probed = %v, want %v", report.Probed, tt.wantProbed)
			}
			if f.state(t, "m1") != store.StateRunning {
				t.Errorf("Status must not change stored state, got %q", f.state(t, "m1"))
			}
		})
	}
}

func TestStatus_ProbesHealthPath(t *testing.T) {
	f := newFixture(t, defaultPorts())
	f.mustInstall(t, descriptor("m1"))

	report, err := f.sup.Status(context.Background(), "m1", true)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !reflect.DeepEqual(f.prober.paths, []string{"/m1/health"}) {
		t.Errorf("probed paths = %v, want [/m1/health]", f.prober.paths)
	}
	if report.Container == nil || report.Container.Status != runtime.StatusRunning {
		t.Errorf("Container = %+v, want running", report.Container)
	}
	if report.Uptime == "" || report.Uptime == "unknown" {
		t.Errorf("Uptime = %q, want a duration", report.Uptime)
	}
}

func TestStatus_TerminalStates(t *testing.T) {
	f := newFixture(t, defaultPorts())
	f.mustInstall(t, descriptor("m1"))
	if err := f.sup.Uninstall(context.Background(), "m1"); err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}

	report, err := f.sup.Status(context.Background(), "m1", true)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if report.Status != health.StatusStopped {
		t.Errorf("Status = %q, want stopped", report.Status)
	}
	if report.Probed {
		t.Error("released modules should not be probed")
	}
	if len(f.prober.paths) != 0 {
		t.Errorf("prober called for released module: %v", f.prober.paths)
	}
}

func TestStatus_NotFound(t *testing.T) {
	f := newFixture(t, defaultPorts())

	_, err := f.sup.Status(context.Background(), "ghost", false)
	if !errors.HasCode(err, errors.ExitModuleNotFound) {
		t.Errorf("Status error = %v, want ModuleNotFound", err)
	}
}

func TestStatus_NoProber(t *testing.T) {
	f := newFixture(t, defaultPorts())
	f.mustInstall(t, descriptor("m1"))
	f.sup.prober = nil

	report, err := f.sup.Status(context.Background(), "m1", true)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if report.Status != health.StatusUnhealthy || report.ProbeError == "" {
		t.Errorf("report = %+v, want unhealthy with probe error", report)
	}
}

func TestListPortsRoutes(t *testing.T) {
	f := newFixture(t, defaultPorts())
	f.mustInstall(t, descriptor("a"))
	f.mustInstall(t, descriptor("b", "80", "443"))

	records, err := f.sup.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 || records[0].ModuleID != "a" || records[1].ModuleID != "b" {
		t.Errorf("List = %+v", records)
	}

	ports, err := f.sup.Ports(context.Background())
	if err != nil {
		t.Fatalf("Ports failed: %v", err)
	}
	if len(ports) != 3 {
		t.Errorf("Ports = %d allocations, want 3", len(ports))
	}

	routes, err := f.sup.Routes()
	if err != nil {
		t.Fatalf("Routes failed: %v", err)
	}
	if !reflect.DeepEqual(routes, []string{"a", "b"}) {
		t.Errorf("Routes = %v, want [a b]", routes)
	}
}

func TestStatus_MissingRouteIsNotAProxyRejection(t *testing.T) {
	f := newFixture(t, defaultPorts())
	rec := f.mustInstall(t, descriptor("m1"))

	rec.Route = nil
	if err := f.store.UpsertModule(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	report, err := f.sup.Status(context.Background(), "m1", true)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if report.Status != health.StatusUnhealthy {
		t.Errorf("Status = %q, want unhealthy", report.Status)
	}
	if !strings.Contains(report.ProbeError, "no recorded route") {
		t.Errorf("ProbeError = %q, want the missing route named", report.ProbeError)
	}
	if strings.Contains(report.ProbeError, "invalid route configuration") {
		t.Errorf("ProbeError = %q, a missing route is not a rejected proxy config", report.ProbeError)
	}
	if len(f.prober.paths) != 0 {
		t.Errorf("prober called with %v, want no request", f.prober.paths)
	}
}
