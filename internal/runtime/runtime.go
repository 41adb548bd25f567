// Package runtime defines the container runtime interface for modhost.
// The supervisor only talks to containers through Runtime, so the docker
// CLI backend can be swapped for MockRuntime in tests.
package runtime

import (
	"context"
	"time"
)

// ContainerStatus represents the state of a container
type ContainerStatus string

const (
	StatusCreated    ContainerStatus = "created"
	StatusRunning    ContainerStatus = "running"
	StatusRestarting ContainerStatus = "restarting"
	StatusStopped    ContainerStatus = "stopped"
	StatusDead       ContainerStatus = "dead"
	StatusNotFound   ContainerStatus = "not-found"
	StatusUnknown    ContainerStatus = "unknown"
)

// Exited reports whether the container has stopped on its own or been stopped.
func (s ContainerStatus) Exited() bool {
	return s == StatusStopped || s == StatusDead
}

// ContainerInfo holds information about a container
type ContainerInfo struct {
	ID        string
	Name      string
	Status    ContainerStatus
	StartedAt string
	ExitCode  int
	Networks  []string // sorted
}

// PortBinding publishes one container port on the host.
type PortBinding struct {
	HostPort      int
	ContainerPort int
}

// CreateOptions holds options for creating a container
type CreateOptions struct {
	Name    string
	Image   string
	Network string
	Ports   []PortBinding
	Env     []string          // KEY=VALUE
	Labels  map[string]string // applied sorted by key
}

// Runtime is the interface that container backends must implement.
// All methods should be safe for concurrent use. Handles are container
// ids or names.
type Runtime interface {
	// Name returns the runtime identifier (e.g., "docker", "podman")
	Name() string

	// Create creates a new container but does not start it, returning its id.
	Create(ctx context.Context, opts CreateOptions) (string, error)

	// Start starts an existing container
	Start(ctx context.Context, handle string) error

	// Stop stops a running container; a missing container is not an error.
	Stop(ctx context.Context, handle string, timeout time.Duration) error

	// Remove force-removes a container; a missing container is not an error.
	Remove(ctx context.Context, handle string) error

	// Inspect returns the container's state. A missing container yields
	// StatusNotFound and a nil error.
	Inspect(ctx context.Context, handle string) (*ContainerInfo, error)
}

// Label keys set on every module container.
const (
	LabelModule    = "io.modhost.module"
	LabelInstallID = "io.modhost.install-id"
	LabelManaged   = "io.modhost.managed"
)
