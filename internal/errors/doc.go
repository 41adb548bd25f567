// Package errors provides typed errors with exit codes for modhost.
//
// # Error Types
//
// ModhostError is the base error type that wraps an error with an exit code:
//
//	type ModhostError struct {
//	    Code    int    // Exit code
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Exit Codes
//
// Each failure class of the orchestration core has its own exit code:
//
//	ExitGeneralError           = 1  // General/unknown errors
//	ExitModuleNotFound         = 2  // No record for the module id
//	ExitValidation             = 3  // Descriptor rejected before any resource was touched
//	ExitCapacityExhausted      = 4  // Port range full
//	ExitContainerRuntime       = 5  // Container runtime failure
//	ExitConfigError            = 6  // Host configuration error
//	ExitAlreadyInstalling      = 7  // Another operation on the same module is in flight
//	ExitNetworkNotFound        = 8  // Platform network could not be determined
//	ExitInvalidRoute           = 9  // Generated proxy config failed validation
//	ExitReconciliationRequired = 10 // A compensation or teardown step failed
//	ExitModuleExists           = 11 // Module is already installed
//	ExitStoreError             = 12 // Persistence failure
//	ExitProxyReload            = 13 // Proxy rejected a reload
//
// # Secondary Errors
//
// A failed install returns the original failure. When a compensation step
// also fails, that failure is attached as a secondary error which never
// replaces the root cause:
//
//	err = errors.WithSecondary(err, errors.ReconciliationRequired("m1", compErr))
//	errors.GetExitCode(err)  // exit code of the original failure
//	errors.SecondaryOf(err)  // the ReconciliationRequired error
package errors
