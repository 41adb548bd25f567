package supervisor

import (
	"sync"

	"github.com/firefly-engineering/modhost/internal/config"
	"github.com/firefly-engineering/modhost/internal/lockfile"
	"github.com/firefly-engineering/modhost/internal/logging"
)

// guard tracks module ids with an operation in flight. With a lock
// directory the claim is also a flock on <dir>/<id>.lock, which keeps
// separate modhost processes apart.
type guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
	dir      string
}

func newGuard(dir string) *guard {
	return &guard{inFlight: make(map[string]struct{}), dir: dir}
}

// acquire claims id. The returned release func must be called exactly once.
// ok is false when the id is busy here or in another process.
func (g *guard) acquire(id string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[id]; busy {
		return nil, false
	}

	var lock *lockfile.Lock
	if g.dir != "" {
		path, err := config.SafePath(g.dir, id, ".lock")
		if err != nil {
			return nil, false
		}
		lock, err = lockfile.TryLock(path)
		if err != nil {
			if err != lockfile.ErrLocked {
				logging.Warn("cannot take module lock", "module", id, "error", err)
			}
			return nil, false
		}
	}
	g.inFlight[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.inFlight, id)
			if lock != nil {
				if err := lock.Unlock(); err != nil {
					logging.Warn("failed to release module lock", "module", id, "error", err)
				}
			}
		})
	}, true
}

// held reports whether id is currently claimed by this or another process.
func (g *guard) held(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[id]; busy {
		return true
	}
	if g.dir == "" {
		return false
	}
	path, err := config.SafePath(g.dir, id, ".lock")
	if err != nil {
		return false
	}
	held, err := lockfile.Held(path)
	return err == nil && held
}
