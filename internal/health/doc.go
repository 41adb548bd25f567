// Package health summarizes module status and probes health endpoints.
//
// Status values:
//   - starting: install still in progress
//   - healthy: running (and, when probed, answering on /<id>/health)
//   - unhealthy: container up but the health endpoint fails
//   - stopped: uninstalled, failed, or the container is not running
//
// Probing goes through the public proxy URL, so it exercises the same
// path external monitors use.
package health
