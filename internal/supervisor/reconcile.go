package supervisor

import (
	"context"
	"fmt"
	"sort"

	"github.com/firefly-engineering/modhost/internal/audit"
	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/logging"
	"github.com/firefly-engineering/modhost/internal/runtime"
	"github.com/firefly-engineering/modhost/internal/store"
)

// ReconcileReport lists what a reconcile pass changed.
type ReconcileReport struct {
	// TornDown are modules whose leftover resources were removed.
	TornDown []string `json:"tornDown,omitempty"`

	// ReleasedPorts counts orphaned active allocations released, by module.
	ReleasedPorts map[string]int `json:"releasedPorts,omitempty"`

	// RemovedRoutes are route units that had no running module.
	RemovedRoutes []string `json:"removedRoutes,omitempty"`

	// Skipped modules had an operation in flight.
	Skipped []string `json:"skipped,omitempty"`

	// Failed maps module ids to the error that kept them from being fixed.
	Failed map[string]string `json:"failed,omitempty"`
}

// Clean reports whether the pass found nothing to fix and nothing failed.
func (r *ReconcileReport) Clean() bool {
	return len(r.TornDown) == 0 && len(r.ReleasedPorts) == 0 && len(r.RemovedRoutes) == 0 && len(r.Failed) == 0
}

// Reconcile repairs state left behind by interrupted or partially failed
// operations:
//
//   - failed modules, and modules stuck in a non-terminal state with no
//     operation in flight, have their leftovers torn down
//   - active allocations whose module is missing or terminal are released
//   - route units without a running module are removed
//
// Modules with an operation in flight are skipped. The error is non-nil
// when some module could not be fixed; the report is returned either way.
func (s *Supervisor) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	log := logging.With("component", "supervisor", "op", "reconcile")
	report := &ReconcileReport{
		ReleasedPorts: make(map[string]int),
		Failed:        make(map[string]string),
	}

	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	for i := range records {
		rec := &records[i]
		if rec.State == store.StateRunning || rec.State == store.StateReleased {
			continue
		}
		s.reconcileModule(ctx, rec, report)
	}

	// Re-read: the pass above changed states and released ports.
	records, err = s.List(ctx)
	if err != nil {
		return report, err
	}
	byID := make(map[string]*store.ModuleRecord, len(records))
	for i := range records {
		byID[records[i].ModuleID] = &records[i]
	}

	active, err := s.ports.ListActive(ctx)
	if err != nil {
		return report, err
	}
	orphaned := make(map[string]bool)
	for _, a := range active {
		if rec, ok := byID[a.ModuleID]; !ok || rec.State.Terminal() {
			orphaned[a.ModuleID] = true
		}
	}
	for _, id := range sortedKeys(orphaned) {
		release, ok := s.guard.acquire(id)
		if !ok {
			report.Skipped = appendUnique(report.Skipped, id)
			continue
		}
		n, err := s.releaseOrphanPorts(ctx, id)
		release()
		if err != nil {
			report.Failed[id] = fmt.Sprintf("release ports: %v", err)
			continue
		}
		if n > 0 {
			report.ReleasedPorts[id] = n
			log.Info("released orphaned ports", "module", id, "count", n)
		}
	}

	routes, err := s.routes.List()
	if err != nil {
		return report, err
	}
	for _, id := range routes {
		if rec, ok := byID[id]; ok && !rec.State.Terminal() {
			continue
		}
		release, ok := s.guard.acquire(id)
		if !ok {
			report.Skipped = appendUnique(report.Skipped, id)
			continue
		}
		removed, err := s.removeOrphanRoute(ctx, id)
		release()
		if err != nil {
			report.Failed[id] = fmt.Sprintf("remove route: %v", err)
			continue
		}
		if removed {
			report.RemovedRoutes = append(report.RemovedRoutes, id)
			log.Info("removed orphaned route", "module", id)
		}
	}

	if len(report.Failed) > 0 {
		ids := sortedKeys(report.Failed)
		return report, errors.New(errors.ExitReconciliationRequired,
			fmt.Sprintf("%d module(s) still need reconciliation: %v", len(ids), ids))
	}
	return report, nil
}

// orphaned re-reads id's record under its guard and reports whether the
// module is gone or terminal. The snapshot a pass started from may be
// stale by the time the guard is taken.
func (s *Supervisor) orphaned(ctx context.Context, id string) (bool, error) {
	rec, err := s.store.GetModule(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, errors.StoreError("load module "+id, err)
	}
	return rec.State.Terminal(), nil
}

// releaseOrphanPorts releases id's active ports if it is still orphaned.
// Caller holds the guard.
func (s *Supervisor) releaseOrphanPorts(ctx context.Context, id string) (int, error) {
	orphan, err := s.orphaned(ctx, id)
	if err != nil || !orphan {
		return 0, err
	}
	return s.ports.Release(ctx, id)
}

// removeOrphanRoute removes id's route unit if it is still orphaned.
// Caller holds the guard.
func (s *Supervisor) removeOrphanRoute(ctx context.Context, id string) (bool, error) {
	orphan, err := s.orphaned(ctx, id)
	if err != nil || !orphan {
		return false, err
	}
	return true, s.routes.Remove(ctx, id)
}

// reconcileModule tears down a failed or stuck module if anything of it
// remains.
func (s *Supervisor) reconcileModule(ctx context.Context, snap *store.ModuleRecord, report *ReconcileReport) {
	id := snap.ModuleID
	release, ok := s.guard.acquire(id)
	if !ok {
		report.Skipped = appendUnique(report.Skipped, id)
		return
	}
	defer release()

	rec, err := s.store.GetModule(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		report.Failed[id] = errors.StoreError("load module "+id, err).Error()
		return
	}
	if rec.State == store.StateRunning || rec.State == store.StateReleased {
		// Finished by another operation since the pass started.
		return
	}

	log := logging.With("component", "supervisor", "op", "reconcile", "module", id, "install", rec.InstallID)

	leftover, err := s.hasLeftovers(ctx, rec)
	if err != nil {
		report.Failed[id] = err.Error()
		return
	}
	stuck := !rec.State.Terminal()
	if !leftover && !stuck {
		return
	}

	tctx, cancel := s.detached(ctx)
	defer cancel()

	prev := rec.State
	if err := s.teardown(tctx, rec, log); err != nil {
		report.Failed[id] = err.Error()
		rec.LastError = "reconcile incomplete: " + err.Error()
		if err := s.save(tctx, rec, store.StateFailed); err != nil {
			log.Error("failed to record reconcile failure", "error", err)
		}
		return
	}

	next := store.StateFailed
	switch {
	case prev == store.StateUninstalling:
		next = store.StateReleased
		rec.LastError = ""
	case stuck:
		rec.LastError = fmt.Sprintf("interrupted while %s", prev)
	}
	if err := s.save(tctx, rec, next); err != nil {
		report.Failed[id] = err.Error()
		return
	}

	report.TornDown = append(report.TornDown, id)
	s.record(audit.EventReconciled, rec, fmt.Sprintf("%s -> %s", prev, next))
	log.Info("reconciled module", "from", prev, "to", next)
}

// hasLeftovers reports whether rec still holds a route, a container or
// active ports.
func (s *Supervisor) hasLeftovers(ctx context.Context, rec *store.ModuleRecord) (bool, error) {
	if len(rec.ActivePorts()) > 0 {
		return true, nil
	}
	allocs, err := s.store.ListAllocations(ctx, store.AllocationFilter{ModuleID: rec.ModuleID, ActiveOnly: true})
	if err != nil {
		return false, errors.StoreError("list allocations", err)
	}
	if len(allocs) > 0 {
		return true, nil
	}

	routes, err := s.routes.List()
	if err != nil {
		return false, err
	}
	for _, id := range routes {
		if id == rec.ModuleID {
			return true, nil
		}
	}

	info, err := s.rt.Inspect(ctx, containerHandle(rec, s.containerPrefix))
	if err != nil {
		return false, runtimeErr("inspect", err)
	}
	return info.Status != runtime.StatusNotFound, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}
