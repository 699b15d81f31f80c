package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/findings-relay/findings-relay/internal/connectors/registry"
)

type countingHandler struct {
	mu    sync.Mutex
	count int
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *countingHandler) Handle(context.Context, slog.Record) error {
	h.mu.Lock()
	h.count++
	h.mu.Unlock()
	return nil
}

func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func (h *countingHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func TestLogReporterThrottlesProgress(t *testing.T) {
	t.Parallel()

	handler := &countingHandler{}
	logger := slog.New(handler)

	reporter := &LogReporter{
		Logger:              logger,
		ProgressInterval:    time.Hour,
		ProgressPercentStep: 5,
	}

	const total = 1000
	reporter.Report(registry.Event{Source: "polaris", Stage: "report-issues", Current: 0, Total: total, Message: "reporting issues"})
	for i := int64(1); i < total; i++ {
		reporter.Report(registry.Event{
			Source:  "polaris",
			Stage:   "report-issues",
			Current: i,
			Total:   total,
			Message: fmt.Sprintf("issues %d/%d", i, total),
		})
	}
	reporter.Report(registry.Event{Source: "polaris", Stage: "report-issues", Current: total, Total: total, Message: "sync complete"})

	step := reporter.ProgressPercentStep
	expected := 2 + int(int64(99)/step) // 0% + each step (excluding 100%) + 100%
	if got := handler.Count(); got != expected {
		t.Fatalf("expected %d logs, got %d", expected, got)
	}
}

func TestLogReporterAlwaysLogsErrors(t *testing.T) {
	t.Parallel()

	handler := &countingHandler{}
	logger := slog.New(handler)

	reporter := &LogReporter{Logger: logger}
	reporter.Report(registry.Event{Source: "polaris", Stage: "report-issues", Err: errors.New("boom")})

	if got := handler.Count(); got != 1 {
		t.Fatalf("expected 1 log, got %d", got)
	}
}

type levelHandler struct {
	mu     sync.Mutex
	levels []slog.Level
}

func (h *levelHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *levelHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.levels = append(h.levels, r.Level)
	h.mu.Unlock()
	return nil
}

func (h *levelHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *levelHandler) WithGroup(string) slog.Handler      { return h }

func TestLogReporterAnnouncesStagesAtDebug(t *testing.T) {
	t.Parallel()

	handler := &levelHandler{}
	reporter := &LogReporter{Logger: slog.New(handler)}
	reporter.Report(registry.Event{Source: "codedx", Stage: "list-findings", Total: registry.UnknownTotal, Message: "listing findings"})
	reporter.Report(registry.Event{Source: "codedx", Stage: "list-child-projects", Current: 1, Total: 1, Message: "parent has 2 child projects"})

	want := []slog.Level{slog.LevelDebug, slog.LevelInfo}
	if len(handler.levels) != len(want) || handler.levels[0] != want[0] || handler.levels[1] != want[1] {
		t.Fatalf("levels = %v, want %v", handler.levels, want)
	}
}

func TestLogReporterThrottlesUnknownTotalsByInterval(t *testing.T) {
	t.Parallel()

	handler := &countingHandler{}
	reporter := &LogReporter{Logger: slog.New(handler), ProgressInterval: time.Minute}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 10; i++ {
		reporter.Report(registry.Event{
			Source:  "polaris",
			Stage:   "walk-projects",
			Current: i,
			Total:   registry.UnknownTotal,
			Message: "walking",
			At:      start.Add(time.Duration(i) * 10 * time.Second),
		})
	}
	// Logged at 10s and again once 70s is reached.
	if got := handler.Count(); got != 2 {
		t.Fatalf("expected 2 logs, got %d", got)
	}

	reporter.Report(registry.Event{Source: "polaris", Stage: "walk-projects", Message: "done", Done: true, At: start.Add(2 * time.Minute)})
	if got := handler.Count(); got != 3 {
		t.Fatalf("expected done event to log, got %d", got)
	}
}
