package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/firefly-engineering/modhost/internal/audit"
	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/health"
	"github.com/firefly-engineering/modhost/internal/route"
	"github.com/firefly-engineering/modhost/internal/runtime"
	"github.com/firefly-engineering/modhost/internal/store"
)

// Defaults applied to zero-valued Options.
const (
	DefaultStartTimeout        = 30 * time.Second
	DefaultStopTimeout         = 10 * time.Second
	DefaultPollInterval        = 500 * time.Millisecond
	DefaultCompensationTimeout = time.Minute
)

// PortAllocator hands out and releases external ports.
type PortAllocator interface {
	Allocate(ctx context.Context, moduleID, installID string, internalPorts []int) (map[int]int, error)
	Release(ctx context.Context, moduleID string) (int, error)
	ReleaseInstall(ctx context.Context, installID string) (int, error)
	ListActive(ctx context.Context) ([]store.PortAllocation, error)
}

// RoutePublisher manages the proxy's per-module route units.
type RoutePublisher interface {
	Publish(ctx context.Context, def route.Definition) error
	Remove(ctx context.Context, moduleID string) error
	List() ([]string, error)
}

// NetworkResolver returns the network module containers join.
type NetworkResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Deps are the collaborators a Supervisor drives. Validator, Prober and
// Audit are optional.
type Deps struct {
	Store     store.Store
	Ports     PortAllocator
	Routes    RoutePublisher
	Network   NetworkResolver
	Runtime   runtime.Runtime
	Validator Validator
	Prober    health.Prober
	Audit     audit.Recorder
}

// Options tunes container naming and timeouts.
type Options struct {
	ContainerPrefix string

	// StartTimeout bounds the wait for a new container to report running.
	StartTimeout time.Duration

	// StopTimeout is the grace period given to a container on stop.
	StopTimeout time.Duration

	// PollInterval is how often a starting container is inspected.
	PollInterval time.Duration

	// CompensationTimeout bounds a rollback or teardown once the
	// caller's context is no longer honored.
	CompensationTimeout time.Duration

	// LockDir holds one lock file per module. Supervisors in different
	// processes sharing a LockDir never operate on the same module at
	// once. Empty limits the guard to this process.
	LockDir string
}

// Supervisor is the module orchestrator. It is safe for concurrent use.
type Supervisor struct {
	store     store.Store
	ports     PortAllocator
	routes    RoutePublisher
	network   NetworkResolver
	rt        runtime.Runtime
	validator Validator
	prober    health.Prober
	audit     audit.Recorder

	containerPrefix     string
	startTimeout        time.Duration
	stopTimeout         time.Duration
	pollInterval        time.Duration
	compensationTimeout time.Duration

	guard *guard
	now   func() time.Time
	newID func() string
}

// New creates a Supervisor.
func New(deps Deps, opts Options) *Supervisor {
	s := &Supervisor{
		store:               deps.Store,
		ports:               deps.Ports,
		routes:              deps.Routes,
		network:             deps.Network,
		rt:                  deps.Runtime,
		validator:           deps.Validator,
		prober:              deps.Prober,
		audit:               deps.Audit,
		containerPrefix:     opts.ContainerPrefix,
		startTimeout:        opts.StartTimeout,
		stopTimeout:         opts.StopTimeout,
		pollInterval:        opts.PollInterval,
		compensationTimeout: opts.CompensationTimeout,
		guard:               newGuard(opts.LockDir),
		now:                 time.Now,
		newID:               uuid.NewString,
	}

	if s.validator == nil {
		s.validator = DescriptorValidator{}
	}
	if s.audit == nil {
		s.audit = nopRecorder{}
	}
	if s.startTimeout <= 0 {
		s.startTimeout = DefaultStartTimeout
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = DefaultStopTimeout
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.compensationTimeout <= 0 {
		s.compensationTimeout = DefaultCompensationTimeout
	}
	return s
}

type nopRecorder struct{}

func (nopRecorder) Record(audit.Event) {}

// record emits an audit event; the recorder never reports failure.
func (s *Supervisor) record(typ audit.EventType, rec *store.ModuleRecord, details string) {
	s.audit.Record(audit.Event{
		Timestamp: s.now(),
		Type:      typ,
		Module:    rec.ModuleID,
		InstallID: rec.InstallID,
		Details:   details,
	})
}

// save persists rec in state and stamps UpdatedAt.
func (s *Supervisor) save(ctx context.Context, rec *store.ModuleRecord, state store.ModuleState) error {
	rec.State = state
	rec.UpdatedAt = s.now()
	if err := s.store.UpsertModule(ctx, rec); err != nil {
		return errors.StoreError(fmt.Sprintf("save module %s (%s)", rec.ModuleID, state), err)
	}
	return nil
}

// claim writes rec in state only if no record exists or the stored one is
// in one of from. It reports whether the write happened.
func (s *Supervisor) claim(ctx context.Context, rec *store.ModuleRecord, state store.ModuleState, from ...store.ModuleState) (bool, error) {
	rec.State = state
	rec.UpdatedAt = s.now()
	ok, err := s.store.ClaimModule(ctx, rec, from...)
	if err != nil {
		return false, errors.StoreError(fmt.Sprintf("claim module %s (%s)", rec.ModuleID, state), err)
	}
	return ok, nil
}

// load returns the record for moduleID, ModuleNotFound, or a store error.
func (s *Supervisor) load(ctx context.Context, moduleID string) (*store.ModuleRecord, error) {
	rec, err := s.store.GetModule(ctx, moduleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errors.ModuleNotFound(moduleID)
	}
	if err != nil {
		return nil, errors.StoreError("load module "+moduleID, err)
	}
	return rec, nil
}

// detached returns a context that ignores the caller's cancellation but
// keeps its values, bounded by the compensation timeout.
func (s *Supervisor) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
}

// runtimeErr wraps a runtime failure unless it already carries a code.
func runtimeErr(op string, err error) error {
	var modErr *errors.ModhostError
	if errors.As(err, &modErr) {
		return err
	}
	return errors.ContainerRuntime(op, err)
}

// List returns every module record, including released and failed ones.
func (s *Supervisor) List(ctx context.Context) ([]store.ModuleRecord, error) {
	records, err := s.store.ListModules(ctx)
	if err != nil {
		return nil, errors.StoreError("list modules", err)
	}
	return records, nil
}

// Ports returns the active port allocations ordered by external port.
func (s *Supervisor) Ports(ctx context.Context) ([]store.PortAllocation, error) {
	return s.ports.ListActive(ctx)
}

// Routes returns the module ids that have a route unit on disk.
func (s *Supervisor) Routes() ([]string, error) {
	return s.routes.List()
}
