package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Ports.From != 9000 || cfg.Ports.To != 19999 {
		t.Errorf("port range = %d-%d, want 9000-19999", cfg.Ports.From, cfg.Ports.To)
	}
	if cfg.Ports.ReuseReleased {
		t.Error("ReuseReleased should default to false")
	}
	if cfg.Proxy.ValidateTimeout.Duration != 2*time.Second {
		t.Errorf("ValidateTimeout = %v, want 2s", cfg.Proxy.ValidateTimeout)
	}
	if cfg.Proxy.ReloadTimeout.Duration != 500*time.Millisecond {
		t.Errorf("ReloadTimeout = %v, want 500ms", cfg.Proxy.ReloadTimeout)
	}
	if cfg.Runtime.StartTimeout.Duration != 30*time.Second {
		t.Errorf("StartTimeout = %v, want 30s", cfg.Runtime.StartTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "config.toml", `
[ports]
from = 10000
to = 10010
reserved = [10001, 10003]
reuse_released = true

[proxy]
routes_dir = "/tmp/routes"
reload_timeout = "250ms"

[network]
name = "platform_net"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Ports.From != 10000 || cfg.Ports.To != 10010 {
		t.Errorf("port range = %d-%d, want 10000-10010", cfg.Ports.From, cfg.Ports.To)
	}
	if !cfg.ReservedSet()[10003] || cfg.ReservedSet()[10002] {
		t.Errorf("ReservedSet() = %v", cfg.ReservedSet())
	}
	if !cfg.Ports.ReuseReleased {
		t.Error("ReuseReleased should be true")
	}
	if cfg.Proxy.RoutesDir != "/tmp/routes" {
		t.Errorf("RoutesDir = %q", cfg.Proxy.RoutesDir)
	}
	if cfg.Proxy.ReloadTimeout.Duration != 250*time.Millisecond {
		t.Errorf("ReloadTimeout = %v, want 250ms", cfg.Proxy.ReloadTimeout)
	}
	// Untouched keys keep their defaults
	if cfg.Proxy.ValidateCommand != "nginx -t" {
		t.Errorf("ValidateCommand = %q, want default", cfg.Proxy.ValidateCommand)
	}
	if cfg.Network.Name != "platform_net" {
		t.Errorf("Network.Name = %q", cfg.Network.Name)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "[ports]\nstart = 1\n", "unknown keys"},
		{"bad duration", "[proxy]\nreload_timeout = \"soon\"\n", "failed to parse"},
		{"inverted range", "[ports]\nfrom = 20000\nto = 10000\n", "must not exceed"},
		{"range too high", "[ports]\nto = 70000\n", "within 1-65535"},
		{"bad runtime", "[runtime]\ncommand = \"lxc\"\n", "unsupported command"},
		{"relative url", "[proxy]\npublic_url = \"localhost\"\n", "public_url"},
		{"invalid toml", "[ports\n", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.toml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOrDefault_Missing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.Ports.From != DefaultPortFrom {
		t.Errorf("From = %d, want default", cfg.Ports.From)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Ports.Reserved = []int{9005, 9001}

	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(data), `reload_timeout = "500ms"`) {
		t.Errorf("durations should encode as strings, got:\n%s", data)
	}

	path := writeFile(t, t.TempDir(), "config.toml", string(data))
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load of encoded config failed: %v", err)
	}
	if len(loaded.Ports.Reserved) != 2 || loaded.Ports.Reserved[0] != 9001 {
		t.Errorf("Reserved = %v, want sorted [9001 9005]", loaded.Ports.Reserved)
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.State.Dir = t.TempDir()
	cfg.Proxy.RoutesDir = filepath.Join(cfg.State.Dir, "routes")

	paths, err := cfg.Paths()
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if paths.Database != filepath.Join(cfg.State.Dir, DefaultDatabase) {
		t.Errorf("Database = %q", paths.Database)
	}
	if err := paths.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}
	if paths.LockDir != filepath.Join(cfg.State.Dir, "locks") {
		t.Errorf("LockDir = %q", paths.LockDir)
	}
	for _, dir := range []string{paths.AuditDir, paths.LockDir, paths.RoutesDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s should exist as a directory", dir)
		}
	}

	cfg.State.Database = "../escape.db"
	if _, err := cfg.Paths(); err == nil {
		t.Error("Paths should reject a database name with separators")
	}
}

func TestContainerName(t *testing.T) {
	tests := []struct {
		prefix string
		id     string
		want   string
	}{
		{"modhost-", "wiki", "modhost-wiki"},
		{"", "wiki", "wiki"},
		{"modhost-", "", "modhost-"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ContainerName(tt.prefix, tt.id); got != tt.want {
				t.Errorf("ContainerName(%q, %q) = %q, want %q", tt.prefix, tt.id, got, tt.want)
			}
		})
	}
}

func TestSafePath(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		fname   string
		suffix  string
		wantErr bool
	}{
		{"valid name", "wiki", ".conf", false},
		{"valid with dash", "my-module", ".conf", false},
		{"path traversal", "../escape", ".conf", true},
		{"deep traversal", "../../etc/passwd", "", true},
		{"absolute escape", "/etc/passwd", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := SafePath(tmpDir, tt.fname, tt.suffix)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SafePath(%q, %q) error = %v, wantErr %v", tt.fname, tt.suffix, err, tt.wantErr)
			}
			if err == nil && !strings.HasPrefix(path, tmpDir) {
				t.Errorf("SafePath returned %q outside %q", path, tmpDir)
			}
		})
	}
}

func TestValidateModuleID(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		// Valid ids
		{"m1", false},
		{"my-module", false},
		{"my_module", false},
		{"123module", false},
		{"a", false},

		// Invalid ids
		{"", true},
		{"My-Module", true},
		{"my module", true},
		{"../../../etc/passwd", true},
		{"/absolute/path", true},
		{"my.module", true},
		{"-starts-with-dash", true},
		{"_starts_with_underscore", true},
		{"has;semicolon", true},
		{"a" + strings.Repeat("b", 63), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModuleID(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateModuleID(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}
