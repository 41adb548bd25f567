package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
)

// Descriptor is the install request for one module, usually read from a
// YAML file:
//
//	id: wiki
//	image: ghcr.io/example/wiki:1.4
//	ports: ["8080", "9090/tcp"]
//	route_port: 8080
//	capabilities: [http, websocket]
//	env:
//	  LOG_LEVEL: info
type Descriptor struct {
	ID           string            `yaml:"id"`
	Image        string            `yaml:"image"`
	Ports        []string          `yaml:"ports"`
	RoutePort    int               `yaml:"route_port,omitempty"`
	Capabilities []string          `yaml:"capabilities,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
}

// LoadDescriptor reads a module descriptor from a YAML file.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	return ParseDescriptor(data)
}

// ParseDescriptor decodes a module descriptor. Unknown keys are rejected.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("descriptor is empty")
		}
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}
	return &d, nil
}

// InternalPorts parses the declared container ports in ascending order.
// Each entry is "<port>" or "<port>/tcp"; other protocols, duplicates and
// out-of-range numbers are errors.
func (d *Descriptor) InternalPorts() ([]int, error) {
	if len(d.Ports) == 0 {
		return nil, fmt.Errorf("at least one port is required")
	}

	seen := make(map[int]bool, len(d.Ports))
	ports := make([]int, 0, len(d.Ports))
	for _, raw := range d.Ports {
		proto, portStr := nat.SplitProtoPort(strings.TrimSpace(raw))
		if proto != "tcp" {
			return nil, fmt.Errorf("port %q: only tcp is supported", raw)
		}
		port, err := nat.NewPort(proto, portStr)
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", raw, err)
		}
		n, err := nat.ParsePort(port.Port())
		if err != nil || n < 1 {
			return nil, fmt.Errorf("port %q: must be between 1 and 65535", raw)
		}
		if seen[n] {
			return nil, fmt.Errorf("port %d declared twice", n)
		}
		seen[n] = true
		ports = append(ports, n)
	}

	sort.Ints(ports)
	return ports, nil
}

// ProxiedPort returns the internal port the route forwards to: RoutePort
// when set, otherwise the lowest declared port.
func (d *Descriptor) ProxiedPort() (int, error) {
	ports, err := d.InternalPorts()
	if err != nil {
		return 0, err
	}
	if d.RoutePort == 0 {
		return ports[0], nil
	}
	for _, p := range ports {
		if p == d.RoutePort {
			return p, nil
		}
	}
	return 0, fmt.Errorf("route_port %d is not one of the declared ports", d.RoutePort)
}

// EnvList returns the environment as sorted KEY=VALUE pairs.
func (d *Descriptor) EnvList() []string {
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+d.Env[k])
	}
	return env
}
