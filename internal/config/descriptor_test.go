package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadDescriptor(t *testing.T) {
	path := writeFile(t, t.TempDir(), "wiki.yaml", `
id: wiki
image: ghcr.io/example/wiki:1.4
ports: ["9090/tcp", "8080"]
route_port: 8080
capabilities: [http, websocket]
env:
  LOG_LEVEL: info
  A: b
`)

	d, err := LoadDescriptor(path)
	if err != nil {
		t.Fatalf("LoadDescriptor failed: %v", err)
	}
	if d.ID != "wiki" || d.Image != "ghcr.io/example/wiki:1.4" {
		t.Errorf("descriptor = %+v", d)
	}

	ports, err := d.InternalPorts()
	if err != nil {
		t.Fatalf("InternalPorts failed: %v", err)
	}
	if !reflect.DeepEqual(ports, []int{8080, 9090}) {
		t.Errorf("InternalPorts() = %v, want [8080 9090]", ports)
	}

	if got := d.EnvList(); !reflect.DeepEqual(got, []string{"A=b", "LOG_LEVEL=info"}) {
		t.Errorf("EnvList() = %v", got)
	}
}

func TestLoadDescriptor_Errors(t *testing.T) {
	if _, err := LoadDescriptor(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := ParseDescriptor([]byte("id: wiki\nimgae: x\n")); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := ParseDescriptor(nil); err == nil {
		t.Error("expected error for empty descriptor")
	}
}

func TestInternalPorts_Errors(t *testing.T) {
	tests := []struct {
		name    string
		ports   []string
		wantErr string
	}{
		{"none", nil, "at least one port"},
		{"udp", []string{"53/udp"}, "only tcp"},
		{"zero", []string{"0"}, ""},
		{"too high", []string{"70000"}, ""},
		{"range", []string{"8000-8010"}, ""},
		{"not a number", []string{"http"}, ""},
		{"duplicate", []string{"8080", "8080/tcp"}, "declared twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Descriptor{ID: "m1", Image: "img", Ports: tt.ports}
			_, err := d.InternalPorts()
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestProxiedPort(t *testing.T) {
	tests := []struct {
		name      string
		ports     []string
		routePort int
		want      int
		wantErr   bool
	}{
		{"lowest by default", []string{"9090", "8080"}, 0, 8080, false},
		{"explicit", []string{"9090", "8080"}, 9090, 9090, false},
		{"undeclared", []string{"8080"}, 3000, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Descriptor{Ports: tt.ports, RoutePort: tt.routePort}
			got, err := d.ProxiedPort()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProxiedPort() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ProxiedPort() = %d, want %d", got, tt.want)
			}
		})
	}
}
