package app

import (
	"github.com/firefly-engineering/modhost/internal/audit"
	"github.com/firefly-engineering/modhost/internal/config"
	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/health"
	"github.com/firefly-engineering/modhost/internal/logging"
	"github.com/firefly-engineering/modhost/internal/network"
	"github.com/firefly-engineering/modhost/internal/port"
	"github.com/firefly-engineering/modhost/internal/route"
	"github.com/firefly-engineering/modhost/internal/runtime"
	"github.com/firefly-engineering/modhost/internal/store"
	"github.com/firefly-engineering/modhost/internal/supervisor"
	"github.com/firefly-engineering/modhost/internal/system"
)

// App holds the application dependencies
type App struct {
	// Config is the loaded host configuration
	Config *config.Config

	// Paths holds the resolved state paths
	Paths *config.Paths

	// Executor runs external commands (container CLI, nginx)
	Executor system.CommandExecutor

	// Store persists allocations and module records
	Store store.Store

	// Runtime is the container runtime
	Runtime runtime.Runtime

	// Controller validates and reloads the proxy
	Controller route.Controller

	// Prober checks module health endpoints
	Prober health.Prober

	// Audit receives lifecycle events
	Audit audit.Recorder

	Allocator  *port.Allocator
	Publisher  *route.Publisher
	Network    *network.Resolver
	Supervisor *supervisor.Supervisor

	ownsStore bool
}

// Option is a function that configures the App
type Option func(*App)

// WithConfig sets the host config
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.Config = cfg
	}
}

// WithExecutor sets the command executor
func WithExecutor(exec system.CommandExecutor) Option {
	return func(a *App) {
		a.Executor = exec
	}
}

// WithStore sets a custom store; the caller keeps ownership
func WithStore(st store.Store) Option {
	return func(a *App) {
		a.Store = st
	}
}

// WithRuntime sets a custom runtime
func WithRuntime(r runtime.Runtime) Option {
	return func(a *App) {
		a.Runtime = r
	}
}

// WithController sets a custom proxy controller
func WithController(c route.Controller) Option {
	return func(a *App) {
		a.Controller = c
	}
}

// WithProber sets a custom health prober
func WithProber(p health.Prober) Option {
	return func(a *App) {
		a.Prober = p
	}
}

// WithAudit sets a custom audit recorder
func WithAudit(r audit.Recorder) Option {
	return func(a *App) {
		a.Audit = r
	}
}

// New builds the App. Collaborators not supplied through options are
// created from the config: sqlite store, docker (or podman) runtime,
// nginx controller, HTTP prober and JSONL audit log.
func New(opts ...Option) (*App, error) {
	a := &App{}
	for _, opt := range opts {
		opt(a)
	}

	if a.Config == nil {
		a.Config = config.Default()
	}
	cfg := a.Config

	paths, err := cfg.Paths()
	if err != nil {
		return nil, errors.ConfigError("invalid state paths", err)
	}
	a.Paths = paths
	if err := paths.EnsureDirs(); err != nil {
		return nil, errors.ConfigError("cannot create state directories", err)
	}

	if a.Executor == nil {
		a.Executor = system.DefaultExecutor()
	}

	if a.Runtime == nil {
		rt, err := runtime.NewDockerRuntime(cfg.Runtime.Command, a.Executor)
		if err != nil {
			return nil, errors.ContainerRuntime("detect", err)
		}
		a.Runtime = rt
	}
	logging.Debug("using container runtime", "runtime", a.Runtime.Name())

	if a.Controller == nil {
		ctl, err := route.NewNginxController(a.Executor,
			cfg.Proxy.ValidateCommand, cfg.Proxy.ReloadCommand,
			cfg.Proxy.ValidateTimeout.Duration, cfg.Proxy.ReloadTimeout.Duration)
		if err != nil {
			return nil, errors.ConfigError("invalid proxy commands", err)
		}
		a.Controller = ctl
	}

	if a.Prober == nil {
		a.Prober = health.NewHTTPProber(cfg.Proxy.PublicURL, health.DefaultProbeTimeout)
	}
	if a.Audit == nil {
		a.Audit = audit.NewLogger(paths.AuditDir)
	}

	if a.Store == nil {
		st, err := store.Open(paths.Database)
		if err != nil {
			return nil, errors.StoreError("open", err)
		}
		a.Store = st
		a.ownsStore = true
	}

	a.Allocator = port.NewAllocator(a.Store, port.Options{
		From:          cfg.Ports.From,
		To:            cfg.Ports.To,
		Reserved:      cfg.Ports.Reserved,
		ReuseReleased: cfg.Ports.ReuseReleased,
	})
	a.Publisher = route.NewPublisher(paths.RoutesDir, cfg.Proxy.UnitPrefix, a.Controller,
		cfg.Proxy.Resolver, cfg.Proxy.ResolverValid.Duration)
	a.Network = network.NewResolver(a.Runtime, cfg.Network.Name, cfg.Network.Self)

	a.Supervisor = supervisor.New(supervisor.Deps{
		Store:   a.Store,
		Ports:   a.Allocator,
		Routes:  a.Publisher,
		Network: a.Network,
		Runtime: a.Runtime,
		Prober:  a.Prober,
		Audit:   a.Audit,
	}, supervisor.Options{
		ContainerPrefix: cfg.Runtime.ContainerPrefix,
		StartTimeout:    cfg.Runtime.StartTimeout.Duration,
		StopTimeout:     cfg.Runtime.StopTimeout.Duration,
		PollInterval:    cfg.Runtime.PollInterval.Duration,
		LockDir:         paths.LockDir,
	})

	return a, nil
}

// Close releases the store if the App opened it.
func (a *App) Close() error {
	if a.ownsStore && a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
