// Package store persists port allocations and module records in sqlite.
//
// The port_allocations table carries a partial UNIQUE index on
// external_port for active rows, so two allocations can never both hold
// the same external port even if callers race. Module records are keyed
// by module id and upserted.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/firefly-engineering/modhost/internal/route"
)

// ErrNotFound is returned when a module record does not exist.
var ErrNotFound = errors.New("not found")

// AllocationStatus is the lifecycle state of a port allocation.
type AllocationStatus string

const (
	AllocationActive   AllocationStatus = "active"
	AllocationReleased AllocationStatus = "released"
)

// PortAllocation binds one external port to one internal port of a module.
type PortAllocation struct {
	ID           int64            `json:"id"`
	ExternalPort int              `json:"externalPort"`
	InternalPort int              `json:"internalPort"`
	ModuleID     string           `json:"moduleId"`
	InstallID    string           `json:"installId"`
	AllocatedAt  time.Time        `json:"allocatedAt"`
	ReleasedAt   *time.Time       `json:"releasedAt,omitempty"`
	Status       AllocationStatus `json:"status"`
}

// ModuleState is a module's position in the install/uninstall state machine.
type ModuleState string

const (
	StatePending           ModuleState = "pending"
	StatePortsAllocated    ModuleState = "ports_allocated"
	StateContainerStarting ModuleState = "container_starting"
	StateRunning           ModuleState = "running"
	StateUninstalling      ModuleState = "uninstalling"
	StateReleased          ModuleState = "released"
	StateFailed            ModuleState = "failed"
)

// Terminal reports whether no further transition is expected.
func (s ModuleState) Terminal() bool {
	return s == StateReleased || s == StateFailed
}

// ModuleRecord is the authoritative description of an installed module.
type ModuleRecord struct {
	ModuleID      string            `json:"moduleId"`
	Image         string            `json:"image"`
	InternalPorts []int             `json:"internalPorts"`
	Ports         []PortAllocation  `json:"ports,omitempty"`
	Route         *route.Definition `json:"route,omitempty"`
	ContainerID   string            `json:"containerId,omitempty"`
	ContainerName string            `json:"containerName,omitempty"`
	Network       string            `json:"network,omitempty"`
	State         ModuleState       `json:"state"`
	InstallID     string            `json:"installId"`
	LastError     string            `json:"lastError,omitempty"`
	InstalledAt   time.Time         `json:"installedAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// ActivePorts returns the module's active allocations.
func (r *ModuleRecord) ActivePorts() []PortAllocation {
	var out []PortAllocation
	for _, p := range r.Ports {
		if p.Status == AllocationActive {
			out = append(out, p)
		}
	}
	return out
}

// AllocationFilter narrows ListAllocations. Zero values match everything.
type AllocationFilter struct {
	ModuleID   string
	InstallID  string
	ActiveOnly bool
}

// Tx is the view of the store available inside InTx.
type Tx interface {
	// RecordedPorts returns the external ports in [from, to] that appear in
	// any allocation row, or only in active rows when activeOnly is set.
	RecordedPorts(ctx context.Context, from, to int, activeOnly bool) (map[int]bool, error)

	// InsertAllocation stores a new active allocation and sets its ID.
	InsertAllocation(ctx context.Context, a *PortAllocation) error
}

// Store is the persistence contract used by the allocator and supervisor.
type Store interface {
	// InTx runs fn in a write transaction; fn's error rolls it back.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// ReleaseAllocations marks every active allocation of moduleID released
	// and returns how many rows changed.
	ReleaseAllocations(ctx context.Context, moduleID string, at time.Time) (int, error)

	// ReleaseInstall marks the active allocations created by one install
	// attempt released and returns how many rows changed.
	ReleaseInstall(ctx context.Context, installID string, at time.Time) (int, error)

	// ListAllocations returns allocations ordered by external port.
	ListAllocations(ctx context.Context, filter AllocationFilter) ([]PortAllocation, error)

	UpsertModule(ctx context.Context, rec *ModuleRecord) error

	// ClaimModule writes rec only when no record exists for its module id
	// or the stored record is in one of the from states. The check and the
	// write are one statement. It reports whether rec was written.
	ClaimModule(ctx context.Context, rec *ModuleRecord, from ...ModuleState) (bool, error)

	GetModule(ctx context.Context, moduleID string) (*ModuleRecord, error)
	ListModules(ctx context.Context) ([]ModuleRecord, error)

	Close() error
}
