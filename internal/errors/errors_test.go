package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestModhostError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *ModhostError
		wantMsg string
	}{
		{
			name:    "without cause",
			err:     New(ExitGeneralError, "something went wrong"),
			wantMsg: "something went wrong",
		},
		{
			name:    "with cause",
			err:     Wrap(ExitGeneralError, "operation failed", fmt.Errorf("underlying error")),
			wantMsg: "operation failed: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestModhostError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ExitGeneralError, "wrapped", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := New(ExitGeneralError, "no cause")
	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("Unwrap() = %v, want nil", unwrapped)
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")

	tests := []struct {
		name     string
		err      *ModhostError
		wantCode int
		wantMsg  string
	}{
		{"capacity", CapacityExhausted(9000, 9001), ExitCapacityExhausted, "no free port in range 9000-9001"},
		{"already installing", AlreadyInstalling("m1"), ExitAlreadyInstalling, "module m1 has an operation in progress, retry later"},
		{"exists", ModuleExists("m1", "running"), ExitModuleExists, "module m1 is already installed (state running)"},
		{"not found", ModuleNotFound("m1"), ExitModuleNotFound, "module not found: m1"},
		{"network", NetworkNotFound(cause), ExitNetworkNotFound, "platform network not found"},
		{"container", ContainerRuntime("start", cause), ExitContainerRuntime, "container start failed"},
		{"route", InvalidRouteConfiguration("m1", cause), ExitInvalidRoute, "invalid route configuration for m1"},
		{"reload", ProxyReloadFailed(cause), ExitProxyReload, "proxy reload failed"},
		{"reconcile", ReconciliationRequired("m1", cause), ExitReconciliationRequired, "module m1 needs reconciliation"},
		{"validation", ValidationFailed("m1", cause), ExitValidation, "module m1 rejected"},
		{"config", ConfigError("bad config", cause), ExitConfigError, "bad config"},
		{"store", StoreError("upsert module", cause), ExitStoreError, "store upsert module failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"ModhostError", ModuleNotFound("test"), ExitModuleNotFound},
		{"wrapped ModhostError", fmt.Errorf("outer: %w", CapacityExhausted(1, 2)), ExitCapacityExhausted},
		{"regular error", fmt.Errorf("some error"), ExitGeneralError},
		{"nil error", nil, ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.wantCode {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("install: %w", AlreadyInstalling("m1"))

	if !HasCode(err, ExitAlreadyInstalling) {
		t.Error("HasCode should find ExitAlreadyInstalling in the chain")
	}
	if HasCode(err, ExitCapacityExhausted) {
		t.Error("HasCode should not match a different code")
	}
	if HasCode(fmt.Errorf("plain"), ExitGeneralError) {
		t.Error("HasCode should be false for non-ModhostError")
	}
}

func TestWithSecondary(t *testing.T) {
	root := ContainerRuntime("start", fmt.Errorf("image not found"))
	secondary := ReconciliationRequired("m1", fmt.Errorf("release ports: database is locked"))

	err := WithSecondary(root, secondary)

	if GetExitCode(err) != ExitContainerRuntime {
		t.Errorf("GetExitCode() = %d, want root cause code %d", GetExitCode(err), ExitContainerRuntime)
	}
	if !errors.Is(err, root) {
		t.Error("errors.Is should still find the root cause")
	}
	if got := SecondaryOf(err); got != secondary {
		t.Errorf("SecondaryOf() = %v, want %v", got, secondary)
	}
	if !strings.Contains(err.Error(), "image not found") || !strings.Contains(err.Error(), "database is locked") {
		t.Errorf("Error() should mention both failures, got %q", err.Error())
	}
}

func TestWithSecondary_Nil(t *testing.T) {
	root := fmt.Errorf("root")

	if got := WithSecondary(root, nil); got != root {
		t.Errorf("WithSecondary(err, nil) = %v, want original error", got)
	}
	if got := WithSecondary(nil, root); got != nil {
		t.Errorf("WithSecondary(nil, err) = %v, want nil", got)
	}
	if SecondaryOf(root) != nil {
		t.Error("SecondaryOf should be nil without an attachment")
	}
}

func TestErrorChaining(t *testing.T) {
	root := fmt.Errorf("root cause")
	middle := Wrap(ExitConfigError, "config error", root)
	outer := fmt.Errorf("operation failed: %w", middle)

	if !errors.Is(outer, root) {
		t.Error("errors.Is should find root cause")
	}

	var modErr *ModhostError
	if !As(outer, &modErr) {
		t.Fatal("As should find ModhostError")
	}
	if modErr.Code != ExitConfigError {
		t.Errorf("Code = %d, want %d", modErr.Code, ExitConfigError)
	}
}
