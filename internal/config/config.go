package config

import (
	"bytes"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	securejoin "github.com/cyphar/filepath-securejoin"
)

// moduleIDRegex validates module identifiers.
// IDs must start with a lowercase letter or digit, followed by lowercase letters, digits, underscores, or hyphens.
// Maximum length is 63 characters (common container name limit).
var moduleIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidateModuleID checks if a module identifier is valid.
// Valid identifiers:
//   - Start with a lowercase letter or digit
//   - Contain only lowercase letters, digits, underscores, or hyphens
//   - Are between 1 and 63 characters long
//
// The identifier ends up in container names, nginx variable names and
// URL path prefixes, so nothing outside this set is accepted.
func ValidateModuleID(id string) error {
	if id == "" {
		return fmt.Errorf("module id cannot be empty")
	}

	if !moduleIDRegex.MatchString(id) {
		return fmt.Errorf("invalid module id %q: must start with a lowercase letter or digit, contain only lowercase letters, digits, underscores, or hyphens, and be at most 63 characters", id)
	}

	return nil
}

// SafePath joins name+suffix under baseDir, refusing anything that would
// land outside it.
func SafePath(baseDir, name, suffix string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("name cannot be an absolute path")
	}
	if filepath.Dir(name) != "." {
		return "", fmt.Errorf("name cannot contain path separators")
	}

	path, err := securejoin.SecureJoin(baseDir, name+suffix)
	if err != nil {
		return "", fmt.Errorf("invalid path for %q: %w", name, err)
	}
	return path, nil
}

const (
	DefaultConfigPath      = "/etc/modhost/config.toml"
	DefaultStateDir        = "/var/lib/modhost"
	DefaultDatabase        = "modhost.db"
	DefaultRoutesDir       = "/etc/nginx/modhost.d"
	DefaultUnitPrefix      = "modhost-"
	DefaultContainerPrefix = "modhost-"
	DefaultPortFrom        = 9000
	DefaultPortTo          = 19999
)

// ContainerName returns the container name for a module.
func ContainerName(prefix, moduleID string) string {
	return prefix + moduleID
}

// Duration is a time.Duration written as a string ("30s", "500ms") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// PortsConfig bounds the external port space handed to modules.
type PortsConfig struct {
	From          int   `toml:"from"`
	To            int   `toml:"to"`
	Reserved      []int `toml:"reserved"`
	ReuseReleased bool  `toml:"reuse_released"`
}

// ProxyConfig describes the nginx instance fronting modules.
type ProxyConfig struct {
	RoutesDir       string   `toml:"routes_dir"`
	UnitPrefix      string   `toml:"unit_prefix"`
	ValidateCommand string   `toml:"validate_command"`
	ReloadCommand   string   `toml:"reload_command"`
	Resolver        string   `toml:"resolver"`
	ResolverValid   Duration `toml:"resolver_valid"`
	PublicURL       string   `toml:"public_url"`
	ValidateTimeout Duration `toml:"validate_timeout"`
	ReloadTimeout   Duration `toml:"reload_timeout"`
}

// NetworkConfig selects the container network modules join.
// With Name empty the network is discovered from the Self container.
type NetworkConfig struct {
	Name string `toml:"name"`
	Self string `toml:"self"`
}

// RuntimeConfig configures the container runtime.
type RuntimeConfig struct {
	Command         string   `toml:"command"`
	ContainerPrefix string   `toml:"container_prefix"`
	StartTimeout    Duration `toml:"start_timeout"`
	StopTimeout     Duration `toml:"stop_timeout"`
	PollInterval    Duration `toml:"poll_interval"`
}

// StateConfig locates persistent state.
type StateConfig struct {
	Dir      string `toml:"dir"`
	Database string `toml:"database"`
}

// Config is the host configuration loaded from config.toml.
type Config struct {
	Ports   PortsConfig   `toml:"ports"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Network NetworkConfig `toml:"network"`
	Runtime RuntimeConfig `toml:"runtime"`
	State   StateConfig   `toml:"state"`
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	return &Config{
		Ports: PortsConfig{
			From: DefaultPortFrom,
			To:   DefaultPortTo,
		},
		Proxy: ProxyConfig{
			RoutesDir:       DefaultRoutesDir,
			UnitPrefix:      DefaultUnitPrefix,
			ValidateCommand: "nginx -t",
			ReloadCommand:   "nginx -s reload",
			Resolver:        "127.0.0.11",
			ResolverValid:   Duration{10 * time.Second},
			PublicURL:       "http://127.0.0.1",
			ValidateTimeout: Duration{2 * time.Second},
			ReloadTimeout:   Duration{500 * time.Millisecond},
		},
		Runtime: RuntimeConfig{
			ContainerPrefix: DefaultContainerPrefix,
			StartTimeout:    Duration{30 * time.Second},
			StopTimeout:     Duration{10 * time.Second},
			PollInterval:    Duration{500 * time.Millisecond},
		},
		State: StateConfig{
			Dir:      DefaultStateDir,
			Database: DefaultDatabase,
		},
	}
}

// Load reads a TOML config file. Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in config %s: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Load(path)
}

// Validate checks that the Config is usable.
func (c *Config) Validate() error {
	if c.Ports.From < 1 || c.Ports.To > 65535 {
		return fmt.Errorf("ports: range must lie within 1-65535 (got %d-%d)", c.Ports.From, c.Ports.To)
	}
	if c.Ports.From > c.Ports.To {
		return fmt.Errorf("ports: from (%d) must not exceed to (%d)", c.Ports.From, c.Ports.To)
	}
	for _, p := range c.Ports.Reserved {
		if p < 1 || p > 65535 {
			return fmt.Errorf("ports: reserved port %d out of range", p)
		}
	}

	if c.Proxy.RoutesDir == "" {
		return fmt.Errorf("proxy: routes_dir is required")
	}
	if strings.ContainsAny(c.Proxy.UnitPrefix, "/\\") {
		return fmt.Errorf("proxy: unit_prefix must not contain path separators")
	}
	if strings.TrimSpace(c.Proxy.ValidateCommand) == "" || strings.TrimSpace(c.Proxy.ReloadCommand) == "" {
		return fmt.Errorf("proxy: validate_command and reload_command are required")
	}
	if c.Proxy.Resolver == "" {
		return fmt.Errorf("proxy: resolver is required")
	}
	if u, err := url.Parse(c.Proxy.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("proxy: public_url must be an absolute URL (got %q)", c.Proxy.PublicURL)
	}
	if c.Proxy.ValidateTimeout.Duration <= 0 || c.Proxy.ReloadTimeout.Duration <= 0 {
		return fmt.Errorf("proxy: timeouts must be positive")
	}

	if c.Runtime.StartTimeout.Duration <= 0 || c.Runtime.PollInterval.Duration <= 0 {
		return fmt.Errorf("runtime: start_timeout and poll_interval must be positive")
	}
	if c.Runtime.Command != "" && c.Runtime.Command != "docker" && c.Runtime.Command != "podman" {
		return fmt.Errorf("runtime: unsupported command %q (must be docker or podman)", c.Runtime.Command)
	}

	if c.State.Dir == "" || c.State.Database == "" {
		return fmt.Errorf("state: dir and database are required")
	}

	return nil
}

// ReservedSet returns the reserved ports as a lookup set.
func (c *Config) ReservedSet() map[int]bool {
	set := make(map[int]bool, len(c.Ports.Reserved))
	for _, p := range c.Ports.Reserved {
		set[p] = true
	}
	return set
}

// Encode renders the config as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	reserved := append([]int(nil), c.Ports.Reserved...)
	sort.Ints(reserved)
	out := *c
	out.Ports.Reserved = reserved
	if err := toml.NewEncoder(&buf).Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Paths holds the resolved state paths.
type Paths struct {
	StateDir  string
	Database  string
	AuditDir  string
	RoutesDir string

	// LockDir holds the per-module flock files shared by every modhost
	// process using this state directory.
	LockDir string
}

// Paths resolves the configured state locations.
func (c *Config) Paths() (*Paths, error) {
	db, err := SafePath(c.State.Dir, c.State.Database, "")
	if err != nil {
		return nil, fmt.Errorf("state.database: %w", err)
	}
	audit, err := SafePath(c.State.Dir, "audit", "")
	if err != nil {
		return nil, err
	}
	locks, err := SafePath(c.State.Dir, "locks", "")
	if err != nil {
		return nil, err
	}
	return &Paths{
		StateDir:  c.State.Dir,
		Database:  db,
		AuditDir:  audit,
		RoutesDir: c.Proxy.RoutesDir,
		LockDir:   locks,
	}, nil
}

// EnsureDirs creates the state, lock and routes directories.
func (p *Paths) EnsureDirs() error {
	for _, dir := range []string{p.StateDir, p.AuditDir, p.LockDir, p.RoutesDir} {
		if err := os.MkdirAll(dir, fs.FileMode(0755)); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
