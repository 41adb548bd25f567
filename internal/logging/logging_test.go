package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetup_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, false, &buf)

	Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected 'test message' in output, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected 'key=value' in text output, got: %s", output)
	}
}

func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, true, &buf)

	Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, `"msg":"test message"`) {
		t.Errorf("Expected JSON msg field, got: %s", output)
	}
}

func TestSetup_VerboseMode(t *testing.T) {
	var buf bytes.Buffer
	Setup(true, false, &buf)

	if !Verbose {
		t.Error("Verbose flag should be true after Setup(true, ...)")
	}

	Debug("debug message")

	if !strings.Contains(buf.String(), "debug message") {
		t.Errorf("Debug message should appear in verbose mode, got: %s", buf.String())
	}
}

func TestSetup_NonVerboseMode(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, false, &buf)

	if Verbose {
		t.Error("Verbose flag should be false after Setup(false, ...)")
	}

	Debug("debug message")

	if strings.Contains(buf.String(), "debug message") {
		t.Errorf("Debug message should NOT appear in non-verbose mode, got: %s", buf.String())
	}
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, false, &buf)

	Warn("warn test")
	Error("error test")

	output := buf.String()
	for _, want := range []string{"warn test", "level=WARN", "error test", "level=ERROR"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got: %s", want, output)
		}
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, false, &buf)

	logger := With("component", "supervisor")
	logger.Info("with test")

	output := buf.String()
	if !strings.Contains(output, "with test") || !strings.Contains(output, "component=supervisor") {
		t.Errorf("Expected message with component attribute, got: %s", output)
	}
}

func TestSetup_NilWriter(t *testing.T) {
	Setup(false, false, nil)

	if Logger == nil {
		t.Error("Logger should not be nil after Setup with nil writer")
	}
}

func TestUserOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	oldOut, oldErr := Stdout, Stderr
	Stdout, Stderr = &stdout, &stderr
	defer func() { Stdout, Stderr = oldOut, oldErr }()

	UserInfo("installing %s", "m1")
	UserSuccess("installed %s", "m1")
	UserWarning("slow %s", "m1")
	UserError("failed %s", "m1")

	if !strings.Contains(stdout.String(), "installing m1") || !strings.Contains(stdout.String(), "installed m1") {
		t.Errorf("stdout missing info/success lines: %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "slow m1") || !strings.Contains(stderr.String(), "failed m1") {
		t.Errorf("stderr missing warning/error lines: %q", stderr.String())
	}
}
