// Package supervisor drives module installs and uninstalls.
//
// An install is a sequence of steps, each acquiring one resource:
//
//	validate → pending → allocate ports → ports_allocated → resolve network
//	→ create/start container → container_starting → wait for running
//	→ publish route → running
//
// Every acquired resource pushes a compensation onto a stack. When a later
// step fails, or the caller cancels, the stack unwinds in reverse order on
// a context detached from the caller, the record is marked failed, and the
// caller receives the original error. Compensation failures ride along as
// a secondary ReconciliationRequired error.
//
// Uninstall runs every teardown step even when earlier ones fail. Whatever
// it leaves behind is picked up by Reconcile.
//
// A module id is held by at most one operation at a time; a second
// concurrent install or uninstall of the same id fails with
// AlreadyInstalling. Operations on different ids run concurrently; only
// the port allocator and the route publisher serialize internally.
package supervisor
