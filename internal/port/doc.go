// Package port allocates external ports for module containers.
//
// Ports come from a configured range (9000-19999 by default) in strictly
// ascending order, skipping reserved ports and every port already
// recorded in the store. Released ports are not recycled unless
// Options.ReuseReleased is set, so installing m1, m2, uninstalling m1 and
// installing m3 yields 9000, 9001, 9002.
//
// Scan and insert run under the allocator mutex inside one store
// transaction; the store's unique index on active external ports backs
// this up across processes.
package port
