// Package network discovers the container network modules are attached to.
//
// Modules must share a network with the reverse proxy so the proxy can
// reach them by container name. The network is either configured
// explicitly or read off the platform's own container.
package network

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/logging"
	"github.com/firefly-engineering/modhost/internal/runtime"
)

// defaultNetworks are created by the engine itself and never shared on purpose.
var defaultNetworks = map[string]bool{
	"bridge": true,
	"host":   true,
	"none":   true,
	"podman": true,
}

// Resolver determines the attach network. It is safe for concurrent use.
type Resolver struct {
	rt       runtime.Runtime
	name     string
	self     string
	hostname func() (string, error)

	mu     sync.Mutex
	cached string
}

// NewResolver creates a resolver. A non-empty name short-circuits
// discovery. self names the platform's own container; when empty the
// host name is used, which is the container id inside docker.
func NewResolver(rt runtime.Runtime, name, self string) *Resolver {
	return &Resolver{
		rt:       rt,
		name:     name,
		self:     self,
		hostname: os.Hostname,
	}
}

// Resolve returns the network new module containers should join.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if r.name != "" {
		return r.name, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" {
		return r.cached, nil
	}

	self := r.self
	if self == "" {
		h, err := r.hostname()
		if err != nil {
			return "", errors.NetworkNotFound(fmt.Errorf("cannot determine own container: %w", err))
		}
		self = h
	}

	info, err := r.rt.Inspect(ctx, self)
	if err != nil {
		return "", errors.NetworkNotFound(fmt.Errorf("inspect %s: %w", self, err))
	}
	if info.Status == runtime.StatusNotFound {
		return "", errors.NetworkNotFound(fmt.Errorf("platform container %s not found; set network.name or network.self", self))
	}

	network := pick(info.Networks)
	if network == "" {
		return "", errors.NetworkNotFound(fmt.Errorf("container %s is only attached to default networks %v", self, info.Networks))
	}

	logging.Debug("resolved attach network", "container", self, "network", network)
	r.cached = network
	return network, nil
}

// pick returns the first non-default network in sorted order.
func pick(networks []string) string {
	sorted := append([]string(nil), networks...)
	sort.Strings(sorted)
	for _, n := range sorted {
		if !defaultNetworks[n] {
			return n
		}
	}
	return ""
}
