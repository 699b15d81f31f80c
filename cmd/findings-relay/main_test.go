package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEmitCommandError_StructuredForScopedCommands(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "info")
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "findings-relay run",
		UsesStructuredLog: true,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("boom"), "command failed", 1, &out)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected structured log output")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got := payload["app"]; got != "findings-relay" {
		t.Fatalf("app = %v, want %q", got, "findings-relay")
	}
	if got := payload["command"]; got != "findings-relay run" {
		t.Fatalf("command = %v, want %q", got, "findings-relay run")
	}
	if got := payload["exit_code"]; got != float64(1) {
		t.Fatalf("exit_code = %v, want %v", got, 1)
	}
	if got := payload["error"]; got != "boom" {
		t.Fatalf("error = %v, want %q", got, "boom")
	}
}

func TestEmitCommandError_FallsBackToJSONWhenLoggingEnvInvalid(t *testing.T) {
	t.Setenv("LOG_FORMAT", "invalid")
	t.Setenv("LOG_LEVEL", "info")
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "findings-relay polaris",
		UsesStructuredLog: true,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("boom"), "command failed", 1, &out)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected structured log output")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("expected JSON fallback log, got parse error: %v", err)
	}
}

func TestEmitCommandError_PlainOutputForNonScopedCommands(t *testing.T) {
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "findings-relay config",
		UsesStructuredLog: false,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(errors.New("plain boom"), "command failed", 1, &out)
	if got := out.String(); got != "plain boom\n" {
		t.Fatalf("output = %q, want %q", got, "plain boom\n")
	}
}

func TestEmitCommandError_CanceledOutputForNonScopedCommands(t *testing.T) {
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       "findings-relay config",
		UsesStructuredLog: false,
	})
	t.Cleanup(resetCommandExecutionContext)

	var out bytes.Buffer
	emitCommandError(context.Canceled, "command canceled", 130, &out)
	if got := out.String(); got != "canceled\n" {
		t.Fatalf("output = %q, want %q", got, "canceled\n")
	}
}

func TestExitCodeForError(t *testing.T) {
	resetCommandExecutionContext()
	t.Cleanup(resetCommandExecutionContext)

	tests := []struct {
		name   string
		err    error
		want   int
		silent bool
	}{
		{name: "plain", err: errors.New("boom"), want: 1},
		{name: "config", err: configError(errors.New("POLARIS_BASE_URL is required")), want: 2},
		{name: "canceled", err: context.Canceled, want: 130},
		{name: "silent canceled", err: &exitError{code: 130, err: context.Canceled, silent: true}, want: 130, silent: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			if got := exitCodeForError(tc.err, &out); got != tc.want {
				t.Fatalf("exitCodeForError() = %d, want %d", got, tc.want)
			}
			if tc.silent && out.Len() != 0 {
				t.Fatalf("expected no output, got %q", out.String())
			}
			if !tc.silent && out.Len() == 0 {
				t.Fatal("expected error output")
			}
		})
	}
}

func TestRunMainReturnsZeroOnSuccess(t *testing.T) {
	var out bytes.Buffer
	if got := runMain(func() error { return nil }, &out); got != 0 {
		t.Fatalf("runMain() = %d, want 0", got)
	}
}
