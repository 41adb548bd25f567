package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// User-facing output functions with colored status prefixes.
// These write to stdout/stderr directly for CLI output,
// separate from the structured debug logging.

var (
	infoPrefix    = color.New(color.FgCyan).Sprint("ℹ")
	successPrefix = color.New(color.FgGreen).Sprint("✓")
	warningPrefix = color.New(color.FgYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgRed).Sprint("✗")
)

// Stdout and Stderr are the user output destinations. Tests replace them.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// UserInfo prints an info message to stdout.
func UserInfo(format string, args ...interface{}) {
	fmt.Fprintf(Stdout, infoPrefix+" "+format+"\n", args...)
}

// UserSuccess prints a success message to stdout.
func UserSuccess(format string, args ...interface{}) {
	fmt.Fprintf(Stdout, successPrefix+" "+format+"\n", args...)
}

// UserWarning prints a warning message to stderr.
func UserWarning(format string, args ...interface{}) {
	fmt.Fprintf(Stderr, warningPrefix+" "+format+"\n", args...)
}

// UserError prints an error message to stderr.
func UserError(format string, args ...interface{}) {
	fmt.Fprintf(Stderr, errorPrefix+" "+format+"\n", args...)
}
