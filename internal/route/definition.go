package route

import (
	"fmt"
	"sort"
	"strings"

	"github.com/firefly-engineering/modhost/internal/config"
)

// Capability is a protocol feature a route forwards.
type Capability string

const (
	CapabilityHTTP      Capability = "http"
	CapabilityWebSocket Capability = "websocket"
)

// ParseCapability maps a descriptor string to a Capability.
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(strings.ToLower(strings.TrimSpace(s))); c {
	case CapabilityHTTP, CapabilityWebSocket:
		return c, nil
	default:
		return "", fmt.Errorf("unknown capability %q (must be http or websocket)", s)
	}
}

// Definition maps a module's public path prefix to its upstream service.
type Definition struct {
	ModuleID     string       `json:"moduleId"`
	PathPrefix   string       `json:"pathPrefix"`
	UpstreamHost string       `json:"upstreamHost"`
	UpstreamPort int          `json:"upstreamPort"`
	Capabilities []Capability `json:"capabilities"`
	HealthPath   string       `json:"healthPath"`
}

// PathPrefix returns the public prefix for a module: /<id>/.
func PathPrefix(moduleID string) string {
	return "/" + moduleID + "/"
}

// HealthPath returns the unauthenticated health path for a module.
func HealthPath(moduleID string) string {
	return "/" + moduleID + "/health"
}

// NewDefinition builds the route for a module. Capabilities are
// deduplicated and sorted; HTTP is always present.
func NewDefinition(moduleID, upstreamHost string, upstreamPort int, caps []Capability) Definition {
	set := map[Capability]bool{CapabilityHTTP: true}
	for _, c := range caps {
		set[c] = true
	}
	sorted := make([]Capability, 0, len(set))
	for c := range set {
		sorted = append(sorted, c)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return Definition{
		ModuleID:     moduleID,
		PathPrefix:   PathPrefix(moduleID),
		UpstreamHost: upstreamHost,
		UpstreamPort: upstreamPort,
		Capabilities: sorted,
		HealthPath:   HealthPath(moduleID),
	}
}

// Has reports whether the route carries capability c.
func (d Definition) Has(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Validate checks the fields that end up in proxy configuration.
func (d Definition) Validate() error {
	if err := config.ValidateModuleID(d.ModuleID); err != nil {
		return err
	}
	if d.PathPrefix != PathPrefix(d.ModuleID) {
		return fmt.Errorf("path prefix %q does not match module %s", d.PathPrefix, d.ModuleID)
	}
	if d.HealthPath != HealthPath(d.ModuleID) {
		return fmt.Errorf("health path %q does not match module %s", d.HealthPath, d.ModuleID)
	}
	if d.UpstreamHost == "" || strings.ContainsAny(d.UpstreamHost, " \t\n;{}$\"'") {
		return fmt.Errorf("invalid upstream host %q", d.UpstreamHost)
	}
	if d.UpstreamPort < 1 || d.UpstreamPort > 65535 {
		return fmt.Errorf("upstream port %d out of range", d.UpstreamPort)
	}
	for _, c := range d.Capabilities {
		if _, err := ParseCapability(string(c)); err != nil {
			return err
		}
	}
	return nil
}

// Upstream returns host:port.
func (d Definition) Upstream() string {
	return fmt.Sprintf("%s:%d", d.UpstreamHost, d.UpstreamPort)
}
