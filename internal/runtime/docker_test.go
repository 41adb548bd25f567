package runtime

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/system"
)

func newTestDocker() (*DockerRuntime, *system.MockExecutor) {
	exec := system.NewMockExecutor()
	rt, _ := NewDockerRuntime("docker", exec)
	return rt, exec
}

func TestCreateArgs(t *testing.T) {
	args := createArgs(CreateOptions{
		Name:    "modhost-wiki",
		Image:   "ghcr.io/example/wiki:1",
		Network: "platform",
		Ports: []PortBinding{
			{HostPort: 9001, ContainerPort: 9090},
			{HostPort: 9000, ContainerPort: 8080},
		},
		Env:    []string{"A=1"},
		Labels: map[string]string{LabelModule: "wiki", LabelInstallID: "i1"},
	})

	want := []string{
		"create", "--name", "modhost-wiki",
		"--network", "platform",
		"--label", LabelInstallID + "=i1",
		"--label", LabelModule + "=wiki",
		"-e", "A=1",
		"-p", "9000:8080/tcp",
		"-p", "9001:9090/tcp",
		"ghcr.io/example/wiki:1",
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("createArgs() =\n%v\nwant\n%v", args, want)
	}
}

func TestDockerRuntime_Create(t *testing.T) {
	rt, exec := newTestDocker()
	exec.AddResponse("docker create", []byte("Unable to find image locally\nabc123def\n"), nil)

	id, err := rt.Create(context.Background(), CreateOptions{Name: "modhost-m1", Image: "img"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != "abc123def" {
		t.Errorf("Create() id = %q, want abc123def", id)
	}
}

func TestDockerRuntime_CreateFailure(t *testing.T) {
	rt, exec := newTestDocker()
	exec.AddResponse("docker create", []byte("Error: pull access denied"), fmt.Errorf("exit status 125"))

	_, err := rt.Create(context.Background(), CreateOptions{Name: "modhost-m1", Image: "img"})
	if !errors.HasCode(err, errors.ExitContainerRuntime) {
		t.Errorf("Create error = %v, want ContainerRuntime", err)
	}
}

func TestDockerRuntime_StopRemoveMissing(t *testing.T) {
	rt, exec := newTestDocker()
	missing := []byte("Error response from daemon: No such container: gone")
	exec.AddResponse("docker stop", missing, fmt.Errorf("exit status 1"))
	exec.AddResponse("docker rm", missing, fmt.Errorf("exit status 1"))

	if err := rt.Stop(context.Background(), "gone", 10*time.Second); err != nil {
		t.Errorf("Stop of missing container should succeed: %v", err)
	}
	if err := rt.Remove(context.Background(), "gone"); err != nil {
		t.Errorf("Remove of missing container should succeed: %v", err)
	}

	stops := exec.CommandsFor("docker", "stop")
	if len(stops) != 1 || !reflect.DeepEqual(stops[0].Args, []string{"stop", "-t", "10", "gone"}) {
		t.Errorf("stop command = %v", stops)
	}
}

func TestDockerRuntime_StartFailure(t *testing.T) {
	rt, exec := newTestDocker()
	exec.AddResponse("docker start", []byte("port is already allocated"), fmt.Errorf("exit status 1"))

	err := rt.Start(context.Background(), "c1")
	if !errors.HasCode(err, errors.ExitContainerRuntime) {
		t.Errorf("Start error = %v, want ContainerRuntime", err)
	}
}

func TestDockerRuntime_Inspect(t *testing.T) {
	rt, exec := newTestDocker()
	exec.AddResponse("docker inspect", []byte(`[{
		"Id": "abc123",
		"Name": "/modhost-m1",
		"State": {"Status": "exited", "Running": false, "StartedAt": "2026-01-02T03:04:05Z", "ExitCode": 137},
		"NetworkSettings": {"Networks": {"platform": {}, "bridge": {}}}
	}]`), nil)

	info, err := rt.Inspect(context.Background(), "modhost-m1")
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.ID != "abc123" || info.Name != "modhost-m1" {
		t.Errorf("Inspect() = %+v", info)
	}
	if info.Status != StatusStopped || info.ExitCode != 137 {
		t.Errorf("Status = %s exit %d, want stopped/137", info.Status, info.ExitCode)
	}
	if !reflect.DeepEqual(info.Networks, []string{"bridge", "platform"}) {
		t.Errorf("Networks = %v", info.Networks)
	}
}

func TestDockerRuntime_InspectMissing(t *testing.T) {
	rt, exec := newTestDocker()
	exec.AddResponse("docker inspect", []byte("Error: No such object: nope"), fmt.Errorf("exit status 1"))

	info, err := rt.Inspect(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Inspect of missing container should not error: %v", err)
	}
	if info.Status != StatusNotFound {
		t.Errorf("Status = %s, want not-found", info.Status)
	}
}

func TestParseInspect_Statuses(t *testing.T) {
	tests := []struct {
		docker string
		want   ContainerStatus
	}{
		{"running", StatusRunning},
		{"created", StatusCreated},
		{"restarting", StatusRestarting},
		{"exited", StatusStopped},
		{"dead", StatusDead},
		{"paused", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.docker, func(t *testing.T) {
			out := fmt.Sprintf(`[{"Id":"x","Name":"/x","State":{"Status":%q}}]`, tt.docker)
			info, err := parseInspect("x", out)
			if err != nil {
				t.Fatalf("parseInspect failed: %v", err)
			}
			if info.Status != tt.want {
				t.Errorf("Status = %s, want %s", info.Status, tt.want)
			}
		})
	}

	if _, err := parseInspect("x", "not json"); err == nil {
		t.Error("parseInspect should reject garbage")
	}
}

func TestMockRuntime(t *testing.T) {
	m := NewMockRuntime()
	ctx := context.Background()

	id, err := m.Create(ctx, CreateOptions{Name: "modhost-m1", Image: "img", Network: "platform"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.Create(ctx, CreateOptions{Name: "modhost-m1"}); err == nil {
		t.Error("duplicate container name should fail")
	}
	if err := m.Start(ctx, id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	info, _ := m.Inspect(ctx, "modhost-m1")
	if info.Status != StatusRunning || info.ID != id {
		t.Errorf("Inspect() = %+v", info)
	}

	if err := m.Remove(ctx, id); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if info, _ := m.Inspect(ctx, id); info.Status != StatusNotFound {
		t.Errorf("removed container status = %s", info.Status)
	}
	if len(m.GetCallsFor("Inspect")) != 2 {
		t.Errorf("Inspect calls = %d, want 2", len(m.GetCallsFor("Inspect")))
	}

	m.SetStartStatus(StatusStopped)
	id2, _ := m.Create(ctx, CreateOptions{Name: "modhost-m2"})
	_ = m.Start(ctx, id2)
	if info, _ := m.Inspect(ctx, id2); !info.Status.Exited() || info.ExitCode != 1 {
		t.Errorf("crashed container = %+v", info)
	}
}
