// Package logging provides logging utilities for modhost.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Colored messages for CLI users (via fatih/color)
//
// # Structured Logging
//
// Structured logs are written using slog and controlled by the --verbose
// and --json flags:
//
//	logging.Debug("allocating ports", "module", id, "count", len(ports))
//	logging.Warn("compensation failed", "module", id, "step", step, "error", err)
//
// Components derive child loggers with With:
//
//	log := logging.With("component", "supervisor", "module", id)
//
// # User Output
//
//	logging.UserInfo("Installing module %s...", id)
//	logging.UserSuccess("Module %s installed", id)
//	logging.UserWarning("Route for %s was already absent", id)
//	logging.UserError("Install failed: %v", err)
//
// UserInfo and UserSuccess write to stdout; UserWarning and UserError to stderr.
package logging
