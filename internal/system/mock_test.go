package system

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestMockExecutor_Responses(t *testing.T) {
	m := NewMockExecutor()
	m.AddResponse("docker inspect", []byte(`[]`), nil)
	m.AddResponse("nginx", nil, errors.New("emerg"))
	m.DefaultResponse = MockResponse{Output: []byte("default")}

	tests := []struct {
		name    string
		cmd     string
		args    []string
		want    string
		wantErr bool
	}{
		{"subcommand match", "docker", []string{"inspect", "x"}, "[]", false},
		{"name match", "nginx", []string{"-t"}, "", true},
		{"default", "podman", []string{"ps"}, "default", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := m.Execute(context.Background(), tt.cmd, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(out) != tt.want {
				t.Errorf("Execute() output = %q, want %q", out, tt.want)
			}
		})
	}

	if len(m.Commands) != 3 {
		t.Errorf("recorded %d commands, want 3", len(m.Commands))
	}
}

func TestMockExecutor_Handler(t *testing.T) {
	m := NewMockExecutor()
	m.AddResponse("docker", []byte("fallback"), nil)
	m.Handler = func(name string, args []string) (MockResponse, bool) {
		if len(args) > 0 && args[0] == "start" {
			return MockResponse{Err: errors.New("no such image")}, true
		}
		return MockResponse{}, false
	}

	if _, err := m.Execute(context.Background(), "docker", "start", "c1"); err == nil {
		t.Error("handler error should be returned")
	}
	out, err := m.Execute(context.Background(), "docker", "ps")
	if err != nil || string(out) != "fallback" {
		t.Errorf("Execute() = %q, %v; want fallback", out, err)
	}

	last, ok := m.LastCommand()
	if !ok || last.String() != "docker ps" {
		t.Errorf("LastCommand() = %v, %v", last, ok)
	}
	if got := len(m.CommandsFor("docker", "start")); got != 1 {
		t.Errorf("CommandsFor(docker, start) = %d, want 1", got)
	}

	m.Reset()
	if _, ok := m.LastCommand(); ok {
		t.Error("LastCommand should be empty after Reset")
	}
}

func TestMockExecutor_LongestPrefix(t *testing.T) {
	m := NewMockExecutor()
	m.AddResponse("nginx", []byte("any"), nil)
	m.AddResponse("nginx -t", []byte("test"), nil)
	m.AddResponse("nginx -t -c /tmp/other.conf", []byte("other"), nil)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-s", "reload"}, "any"},
		{[]string{"-t"}, "test"},
		{[]string{"-t", "-c", "/etc/nginx/nginx.conf"}, "test"},
		{[]string{"-t", "-c", "/tmp/other.conf"}, "other"},
	}
	for _, tt := range tests {
		out, _ := m.Execute(context.Background(), "nginx", tt.args...)
		if string(out) != tt.want {
			t.Errorf("nginx %v = %q, want %q", tt.args, out, tt.want)
		}
	}
}

func TestMockExecutor_RecordsDeadline(t *testing.T) {
	m := NewMockExecutor()

	_, _ = m.Execute(context.Background(), "nginx", "-t")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _ = m.Execute(ctx, "nginx", "-s", "reload")

	if m.Commands[0].HasDeadline {
		t.Error("first command had no deadline")
	}
	if !m.Commands[1].HasDeadline {
		t.Error("second command should record its deadline")
	}
}

func TestOSExecutor(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	e := NewOSExecutor()

	out, err := e.Execute(context.Background(), "sh", "-c", "echo $LC_ALL")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != "C" {
		t.Errorf("LC_ALL = %q, want C", out)
	}

	out, err = e.Execute(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %v, want *CommandError", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", cmdErr.ExitCode)
	}
	if !strings.Contains(cmdErr.Command, "exit 3") {
		t.Errorf("Command = %q", cmdErr.Command)
	}
	if strings.TrimSpace(string(out)) != "boom" {
		t.Errorf("output = %q, want boom", out)
	}
}

func TestOSExecutor_Cancelled(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewOSExecutor().Execute(ctx, "sleep", "5")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %v, want *CommandError", err)
	}
	if cmdErr.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1 for a killed command", cmdErr.ExitCode)
	}
}
