package route

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/firefly-engineering/modhost/internal/config"
	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/lockfile"
	"github.com/firefly-engineering/modhost/internal/logging"
)

const (
	unitSuffix = ".conf"

	// lockName is the flock file shared by every process publishing into
	// the same directory. The leading dot keeps it out of List and out of
	// the proxy's *.conf include.
	lockName = ".modhost.lock"
)

// Publisher owns the directory of per-module nginx units. Every mutation
// holds both the publisher mutex and the directory's flock across write,
// validate and reload, so two modules' changes never interleave, whether
// they come from one process or from separate modhost invocations.
type Publisher struct {
	mu            sync.Mutex
	dir           string
	prefix        string
	ctl           Controller
	resolver      string
	resolverValid time.Duration
}

// NewPublisher creates a publisher writing units named <prefix><id>.conf into dir.
func NewPublisher(dir, prefix string, ctl Controller, resolver string, resolverValid time.Duration) *Publisher {
	return &Publisher{
		dir:           dir,
		prefix:        prefix,
		ctl:           ctl,
		resolver:      resolver,
		resolverValid: resolverValid,
	}
}

// UnitPath returns the path of a module's unit file.
func (p *Publisher) UnitPath(moduleID string) (string, error) {
	if err := config.ValidateModuleID(moduleID); err != nil {
		return "", err
	}
	return config.SafePath(p.dir, p.prefix+moduleID, unitSuffix)
}

// Publish writes the module's unit and reloads the proxy. If validation
// or reload fails, the previous unit (or its absence) is restored and the
// proxy keeps serving the last good configuration.
func (p *Publisher) Publish(ctx context.Context, def Definition) error {
	content, err := Render(def, p.resolver, p.resolverValid)
	if err != nil {
		return errors.InvalidRouteConfiguration(def.ModuleID, err)
	}
	path, err := p.UnitPath(def.ModuleID)
	if err != nil {
		return errors.InvalidRouteConfiguration(def.ModuleID, err)
	}

	unlock, err := p.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	prev, existed, err := readUnit(path)
	if err != nil {
		return err
	}
	if existed && bytes.Equal(prev, content) {
		logging.Debug("route unchanged", "module", def.ModuleID)
		return nil
	}

	if err := writeAtomic(path, content); err != nil {
		return fmt.Errorf("failed to write route for %s: %w", def.ModuleID, err)
	}

	return p.apply(ctx, def.ModuleID, path, prev, existed)
}

// Remove deletes the module's unit and reloads. Removing an absent unit is a no-op.
func (p *Publisher) Remove(ctx context.Context, moduleID string) error {
	path, err := p.UnitPath(moduleID)
	if err != nil {
		return err
	}

	unlock, err := p.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	prev, existed, err := readUnit(path)
	if err != nil {
		return err
	}
	if !existed {
		logging.Debug("route already absent", "module", moduleID)
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove route for %s: %w", moduleID, err)
	}

	return p.apply(ctx, moduleID, path, prev, existed)
}

// lock takes the publisher mutex, then the directory flock. The returned
// func releases both.
func (p *Publisher) lock(ctx context.Context) (func(), error) {
	p.mu.Lock()
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to create routes directory: %w", err)
	}
	l, err := lockfile.Acquire(ctx, filepath.Join(p.dir, lockName), lockfile.DefaultPollInterval)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to lock routes directory: %w", err)
	}
	return func() {
		if err := l.Unlock(); err != nil {
			logging.Warn("failed to unlock routes directory", "error", err)
		}
		p.mu.Unlock()
	}, nil
}

// List returns the ids of modules with a unit on disk, sorted.
func (p *Publisher) List() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read routes directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.HasPrefix(name, p.prefix) || !strings.HasSuffix(name, unitSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, p.prefix), unitSuffix)
		if config.ValidateModuleID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// apply validates then reloads; on failure it puts prev back. Caller holds
// the lock.
func (p *Publisher) apply(ctx context.Context, moduleID, path string, prev []byte, existed bool) error {
	log := logging.With("component", "route", "module", moduleID)

	if err := p.ctl.Validate(ctx); err != nil {
		log.Warn("proxy rejected configuration, rolling back", "error", err)
		restoreErr := restoreUnit(path, prev, existed)
		return errors.WithSecondary(errors.InvalidRouteConfiguration(moduleID, err), restoreErr)
	}

	if err := p.ctl.Reload(ctx); err != nil {
		log.Warn("proxy reload failed, rolling back", "error", err)
		restoreErr := restoreUnit(path, prev, existed)
		if restoreErr == nil {
			// Bring the live proxy back in line with the restored directory.
			if reErr := p.ctl.Reload(context.WithoutCancel(ctx)); reErr != nil {
				log.Warn("reload after rollback failed", "error", reErr)
			}
		}
		return errors.WithSecondary(errors.ProxyReloadFailed(err), restoreErr)
	}

	log.Debug("proxy reloaded")
	return nil
}

func readUnit(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, true, nil
}

func restoreUnit(path string, prev []byte, existed bool) error {
	if existed {
		return writeAtomic(path, prev)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// writeAtomic writes data next to path and renames it into place, so the
// proxy never reads a half-written unit.
func writeAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
