package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/logging"
	"github.com/firefly-engineering/modhost/internal/system"
)

// DockerRuntime implements the Runtime interface using the Docker or
// Podman CLI.
type DockerRuntime struct {
	// Command is the container command to use (docker or podman)
	Command string

	exec system.CommandExecutor
}

// NewDockerRuntime creates a runtime for command. An empty command picks
// docker, then podman, whichever is in PATH.
func NewDockerRuntime(command string, executor system.CommandExecutor) (*DockerRuntime, error) {
	if command == "" {
		detected, err := Detect()
		if err != nil {
			return nil, err
		}
		command = detected
	}
	if executor == nil {
		executor = system.DefaultExecutor()
	}
	return &DockerRuntime{Command: command, exec: executor}, nil
}

// Detect returns the first container CLI found in PATH.
func Detect() (string, error) {
	for _, candidate := range []string{"docker", "podman"} {
		if _, err := exec.LookPath(candidate); err == nil {
			logging.Debug("detected container runtime", "command", candidate)
			return candidate, nil
		}
	}
	return "", fmt.Errorf("neither docker nor podman found in PATH")
}

// Name returns the runtime identifier
func (r *DockerRuntime) Name() string {
	return r.Command
}

// runCmd executes a docker/podman command
func (r *DockerRuntime) runCmd(ctx context.Context, args ...string) (string, error) {
	logging.Debug("running container command", "command", shellquote.Join(append([]string{r.Command}, args...)...))

	output, err := r.exec.Execute(ctx, r.Command, args...)
	if err != nil {
		return "", fmt.Errorf("%s %s failed: %s: %w", r.Command, args[0], strings.TrimSpace(string(output)), err)
	}
	return string(output), nil
}

func isNoSuchContainer(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such container") || strings.Contains(msg, "no such object") || strings.Contains(msg, "no container with name or id")
}

// createArgs builds the argument list for docker create.
func createArgs(opts CreateOptions) []string {
	args := []string{"create", "--name", opts.Name}

	if opts.Network != "" {
		args = append(args, "--network", opts.Network)
	}

	keys := make([]string, 0, len(opts.Labels))
	for k := range opts.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	for _, env := range opts.Env {
		args = append(args, "-e", env)
	}

	ports := append([]PortBinding(nil), opts.Ports...)
	sort.Slice(ports, func(i, j int) bool { return ports[i].HostPort < ports[j].HostPort })
	for _, p := range ports {
		args = append(args, "-p", fmt.Sprintf("%d:%d/tcp", p.HostPort, p.ContainerPort))
	}

	return append(args, opts.Image)
}

// Create creates a new container from the module image
func (r *DockerRuntime) Create(ctx context.Context, opts CreateOptions) (string, error) {
	logging.Debug("creating container", "name", opts.Name, "image", opts.Image, "runtime", r.Command)

	output, err := r.runCmd(ctx, createArgs(opts)...)
	if err != nil {
		return "", errors.ContainerRuntime("create", err)
	}

	id := strings.TrimSpace(output)
	if lines := strings.Split(id, "\n"); len(lines) > 1 {
		// Image pull progress precedes the id.
		id = strings.TrimSpace(lines[len(lines)-1])
	}
	if id == "" {
		return "", errors.ContainerRuntime("create", fmt.Errorf("%s create returned no container id", r.Command))
	}
	return id, nil
}

// Start starts an existing container
func (r *DockerRuntime) Start(ctx context.Context, handle string) error {
	logging.Debug("starting container", "container", handle)

	if _, err := r.runCmd(ctx, "start", handle); err != nil {
		return errors.ContainerRuntime("start", err)
	}
	return nil
}

// Stop stops a running container
func (r *DockerRuntime) Stop(ctx context.Context, handle string, timeout time.Duration) error {
	logging.Debug("stopping container", "container", handle)

	secs := int(timeout / time.Second)
	_, err := r.runCmd(ctx, "stop", "-t", strconv.Itoa(secs), handle)
	if err != nil && !isNoSuchContainer(err) {
		return errors.ContainerRuntime("stop", err)
	}
	return nil
}

// Remove force-removes a container
func (r *DockerRuntime) Remove(ctx context.Context, handle string) error {
	logging.Debug("removing container", "container", handle)

	_, err := r.runCmd(ctx, "rm", "-f", handle)
	if err != nil && !isNoSuchContainer(err) {
		return errors.ContainerRuntime("remove", err)
	}
	return nil
}

// dockerInspect holds the relevant fields from docker inspect
type dockerInspect struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Status    string `json:"Status"`
		Running   bool   `json:"Running"`
		StartedAt string `json:"StartedAt"`
		ExitCode  int    `json:"ExitCode"`
	} `json:"State"`
	NetworkSettings struct {
		Networks map[string]json.RawMessage `json:"Networks"`
	} `json:"NetworkSettings"`
}

// Inspect returns detailed status of a container
func (r *DockerRuntime) Inspect(ctx context.Context, handle string) (*ContainerInfo, error) {
	info := &ContainerInfo{
		Name:   handle,
		Status: StatusNotFound,
	}

	output, err := r.runCmd(ctx, "inspect", "--type", "container", handle)
	if err != nil {
		if isNoSuchContainer(err) {
			return info, nil
		}
		return nil, errors.ContainerRuntime("inspect", err)
	}

	return parseInspect(handle, output)
}

func parseInspect(handle, output string) (*ContainerInfo, error) {
	info := &ContainerInfo{
		Name:   handle,
		Status: StatusNotFound,
	}

	var inspects []dockerInspect
	if err := json.Unmarshal([]byte(output), &inspects); err != nil {
		return nil, errors.ContainerRuntime("inspect", fmt.Errorf("unexpected inspect output: %w", err))
	}
	if len(inspects) == 0 {
		return info, nil
	}

	inspect := inspects[0]
	info.ID = inspect.ID
	info.Name = strings.TrimPrefix(inspect.Name, "/")
	info.StartedAt = inspect.State.StartedAt
	info.ExitCode = inspect.State.ExitCode

	switch inspect.State.Status {
	case "running":
		info.Status = StatusRunning
	case "created", "configured", "initialized":
		info.Status = StatusCreated
	case "restarting":
		info.Status = StatusRestarting
	case "exited", "stopped":
		info.Status = StatusStopped
	case "dead", "removing":
		info.Status = StatusDead
	default:
		info.Status = StatusUnknown
	}

	for name := range inspect.NetworkSettings.Networks {
		info.Networks = append(info.Networks, name)
	}
	sort.Strings(info.Networks)

	return info, nil
}

// Ensure DockerRuntime implements Runtime
var _ Runtime = (*DockerRuntime)(nil)
