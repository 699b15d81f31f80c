package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/findings-relay/findings-relay/internal/findings"
)

// IntegrationDeps carries the run-scoped collaborators handed to an integration.
type IntegrationDeps struct {
	Logger *slog.Logger
	Report func(Event)
	Sink   findings.Sink
}

// Integration walks one vendor hierarchy and emits findings to deps.Sink.
type Integration interface {
	Kind() string
	Name() string
	InitEvents() []Event
	Run(context.Context, IntegrationDeps) error
}

const UnknownTotal int64 = -1

type Reporter interface {
	Report(Event)
}

type Event struct {
	Source  string
	Stage   string
	Current int64
	Total   int64
	Message string
	Done    bool
	Err     error
	At      time.Time
}

// ReportFunc returns deps.Report or a no-op.
func (d IntegrationDeps) ReportFunc() func(Event) {
	if d.Report == nil {
		return func(Event) {}
	}
	return d.Report
}

// Log returns deps.Logger or the default logger.
func (d IntegrationDeps) Log() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Emit forwards f to deps.Sink, falling back to a LogSink on deps.Log().
func (d IntegrationDeps) Emit(f findings.Finding) {
	if d.Sink == nil {
		(&findings.LogSink{Logger: d.Log()}).Emit(f)
		return
	}
	d.Sink.Emit(f)
}
