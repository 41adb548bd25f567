package port

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/logging"
	"github.com/firefly-engineering/modhost/internal/store"
)

// Options configures the port space.
type Options struct {
	From     int
	To       int
	Reserved []int

	// ReuseReleased lets released ports be handed out again. By default a
	// port that was ever recorded is skipped.
	ReuseReleased bool
}

// Allocator hands out external ports from a bounded range.
type Allocator struct {
	mu       sync.Mutex
	store    store.Store
	from, to int
	reserved map[int]bool
	reuse    bool
	now      func() time.Time
}

// NewAllocator creates an allocator over st.
func NewAllocator(st store.Store, opts Options) *Allocator {
	reserved := make(map[int]bool, len(opts.Reserved))
	for _, p := range opts.Reserved {
		reserved[p] = true
	}
	return &Allocator{
		store:    st,
		from:     opts.From,
		to:       opts.To,
		reserved: reserved,
		reuse:    opts.ReuseReleased,
		now:      time.Now,
	}
}

// Allocate assigns one external port per internal port and returns the
// internal→external mapping. Internal ports are served in ascending order,
// each getting the lowest free external port. Either every port is
// allocated or none is.
func (a *Allocator) Allocate(ctx context.Context, moduleID, installID string, internalPorts []int) (map[int]int, error) {
	if len(internalPorts) == 0 {
		return nil, fmt.Errorf("module %s declares no ports", moduleID)
	}
	wanted := append([]int(nil), internalPorts...)
	sort.Ints(wanted)
	for i := 1; i < len(wanted); i++ {
		if wanted[i] == wanted[i-1] {
			return nil, fmt.Errorf("module %s declares port %d twice", moduleID, wanted[i])
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	mapping := make(map[int]int, len(wanted))
	err := a.store.InTx(ctx, func(tx store.Tx) error {
		used, err := tx.RecordedPorts(ctx, a.from, a.to, a.reuse)
		if err != nil {
			return errors.StoreError("scan ports", err)
		}

		next := a.from
		now := a.now()
		for _, internal := range wanted {
			for next <= a.to && (used[next] || a.reserved[next]) {
				next++
			}
			if next > a.to {
				return errors.CapacityExhausted(a.from, a.to)
			}

			alloc := &store.PortAllocation{
				ExternalPort: next,
				InternalPort: internal,
				ModuleID:     moduleID,
				InstallID:    installID,
				AllocatedAt:  now,
			}
			if err := tx.InsertAllocation(ctx, alloc); err != nil {
				return errors.StoreError("insert allocation", err)
			}
			mapping[internal] = next
			used[next] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Debug("ports allocated", "module", moduleID, "install", installID, "ports", mapping)
	return mapping, nil
}

// Release marks every active allocation of moduleID released and returns
// how many there were. Unknown or already released modules are a no-op.
func (a *Allocator) Release(ctx context.Context, moduleID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, err := a.store.ReleaseAllocations(ctx, moduleID, a.now())
	if err != nil {
		return 0, errors.StoreError("release ports", err)
	}
	if n > 0 {
		logging.Debug("ports released", "module", moduleID, "count", n)
	}
	return n, nil
}

// ReleaseInstall releases only the allocations made by one install
// attempt, leaving any other attempt's ports of the same module alone.
func (a *Allocator) ReleaseInstall(ctx context.Context, installID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, err := a.store.ReleaseInstall(ctx, installID, a.now())
	if err != nil {
		return 0, errors.StoreError("release ports", err)
	}
	if n > 0 {
		logging.Debug("ports released", "install", installID, "count", n)
	}
	return n, nil
}

// ListActive returns active allocations ordered by external port.
func (a *Allocator) ListActive(ctx context.Context) ([]store.PortAllocation, error) {
	allocs, err := a.store.ListAllocations(ctx, store.AllocationFilter{ActiveOnly: true})
	if err != nil {
		return nil, errors.StoreError("list allocations", err)
	}
	return allocs, nil
}

// Range returns the configured port range.
func (a *Allocator) Range() (from, to int) {
	return a.from, a.to
}
