package errors

import (
	"errors"
	"fmt"
)

// Exit codes for modhost
const (
	ExitSuccess                = 0
	ExitGeneralError           = 1
	ExitModuleNotFound         = 2
	ExitValidation             = 3
	ExitCapacityExhausted      = 4
	ExitContainerRuntime       = 5
	ExitConfigError            = 6
	ExitAlreadyInstalling      = 7
	ExitNetworkNotFound        = 8
	ExitInvalidRoute           = 9
	ExitReconciliationRequired = 10
	ExitModuleExists           = 11
	ExitStoreError             = 12
	ExitProxyReload            = 13
)

// ModhostError is the base error type for modhost
type ModhostError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ModhostError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ModhostError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *ModhostError) ExitCode() int {
	return e.Code
}

// New creates a new ModhostError
func New(code int, message string) *ModhostError {
	return &ModhostError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a ModhostError
func Wrap(code int, message string, cause error) *ModhostError {
	return &ModhostError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error constructors

// CapacityExhausted returns an error for a full port range
func CapacityExhausted(from, to int) *ModhostError {
	return New(ExitCapacityExhausted, fmt.Sprintf("no free port in range %d-%d", from, to))
}

// AlreadyInstalling returns an error when another operation holds the module
func AlreadyInstalling(moduleID string) *ModhostError {
	return New(ExitAlreadyInstalling, fmt.Sprintf("module %s has an operation in progress, retry later", moduleID))
}

// ModuleExists returns an error for an install over a live module
func ModuleExists(moduleID, state string) *ModhostError {
	return New(ExitModuleExists, fmt.Sprintf("module %s is already installed (state %s)", moduleID, state))
}

// ModuleNotFound returns an error for a missing module record
func ModuleNotFound(moduleID string) *ModhostError {
	return New(ExitModuleNotFound, fmt.Sprintf("module not found: %s", moduleID))
}

// NetworkNotFound returns an error when the platform network cannot be determined
func NetworkNotFound(cause error) *ModhostError {
	return Wrap(ExitNetworkNotFound, "platform network not found", cause)
}

// ContainerRuntime returns an error for container operations
func ContainerRuntime(op string, cause error) *ModhostError {
	return Wrap(ExitContainerRuntime, fmt.Sprintf("container %s failed", op), cause)
}

// InvalidRouteConfiguration returns an error for a route the proxy rejected
func InvalidRouteConfiguration(moduleID string, cause error) *ModhostError {
	return Wrap(ExitInvalidRoute, fmt.Sprintf("invalid route configuration for %s", moduleID), cause)
}

// ProxyReloadFailed returns an error for a failed proxy reload
func ProxyReloadFailed(cause error) *ModhostError {
	return Wrap(ExitProxyReload, "proxy reload failed", cause)
}

// ReconciliationRequired returns an error for resources left behind by a failed cleanup step
func ReconciliationRequired(moduleID string, cause error) *ModhostError {
	return Wrap(ExitReconciliationRequired, fmt.Sprintf("module %s needs reconciliation", moduleID), cause)
}

// ValidationFailed returns an error for a rejected module descriptor
func ValidationFailed(moduleID string, cause error) *ModhostError {
	return Wrap(ExitValidation, fmt.Sprintf("module %s rejected", moduleID), cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *ModhostError {
	return Wrap(ExitConfigError, message, cause)
}

// StoreError returns an error for persistence failures
func StoreError(op string, cause error) *ModhostError {
	return Wrap(ExitStoreError, fmt.Sprintf("store %s failed", op), cause)
}

// secondaryError carries a root cause plus a diagnostic that must not hide it.
type secondaryError struct {
	err       error
	secondary error
}

func (e *secondaryError) Error() string {
	return fmt.Sprintf("%v (secondary: %v)", e.err, e.secondary)
}

func (e *secondaryError) Unwrap() error {
	return e.err
}

// WithSecondary attaches a secondary error to err. Unwrapping, exit codes and
// errors.Is/As all keep following err; SecondaryOf retrieves the attachment.
func WithSecondary(err, secondary error) error {
	if err == nil || secondary == nil {
		return err
	}
	return &secondaryError{err: err, secondary: secondary}
}

// SecondaryOf returns the secondary error attached with WithSecondary, if any.
func SecondaryOf(err error) error {
	var se *secondaryError
	if errors.As(err, &se) {
		return se.secondary
	}
	return nil
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var modErr *ModhostError
	if errors.As(err, &modErr) {
		return modErr.ExitCode()
	}
	return ExitGeneralError
}

// HasCode reports whether the first ModhostError in err's chain has the given code.
func HasCode(err error, code int) bool {
	var modErr *ModhostError
	return errors.As(err, &modErr) && modErr.Code == code
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join combines errors; nil entries are dropped.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
