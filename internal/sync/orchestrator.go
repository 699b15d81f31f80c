// Package sync runs the configured vendor integrations one after another and reports on them.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/findings-relay/findings-relay/internal/connectors/registry"
	"github.com/findings-relay/findings-relay/internal/findings"
	"github.com/findings-relay/findings-relay/internal/logging"
	"github.com/findings-relay/findings-relay/internal/metrics"
	"github.com/hashicorp/go-multierror"
)

type integrationKey struct {
	kind string
	name string
}

type Orchestrator struct {
	logger   *slog.Logger
	reporter registry.Reporter
	sink     func(*slog.Logger, *findings.Tally) findings.Sink

	mu           sync.Mutex
	integrations []registry.Integration
	keys         map[integrationKey]struct{}
	tally        *findings.Tally
}

func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		logger: logger,
		keys:   make(map[integrationKey]struct{}),
		tally:  findings.NewTally(),
		sink: func(l *slog.Logger, t *findings.Tally) findings.Sink {
			return &findings.LogSink{Logger: l, Tally: t}
		},
	}
}

// AddIntegration appends i to the run order. Kind and name must be unique together.
func (o *Orchestrator) AddIntegration(i registry.Integration) error {
	if i == nil {
		return errors.New("integration is nil")
	}
	if v := reflect.ValueOf(i); v.Kind() == reflect.Pointer && v.IsNil() {
		return errors.New("integration is nil")
	}

	kind := strings.TrimSpace(i.Kind())
	name := strings.TrimSpace(i.Name())
	if kind == "" {
		return errors.New("integration kind is required")
	}
	if name == "" {
		return errors.New("integration name is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	key := integrationKey{kind: kind, name: name}
	if _, ok := o.keys[key]; ok {
		return fmt.Errorf("integration %s/%s already registered", kind, name)
	}
	o.keys[key] = struct{}{}
	o.integrations = append(o.integrations, i)
	return nil
}

func (o *Orchestrator) SetReporter(r registry.Reporter) {
	o.reporter = r
}

// Tally returns the counts of every finding emitted so far.
func (o *Orchestrator) Tally() *findings.Tally {
	return o.tally
}

func (o *Orchestrator) report(e registry.Event) {
	if o.reporter == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	o.reporter.Report(e)
}

// RunOnce runs every integration in registration order. A failed integration does not stop
// the next one; cancellation does. The failures are returned together.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	o.mu.Lock()
	integrations := append([]registry.Integration(nil), o.integrations...)
	o.mu.Unlock()

	logger, _ := logging.WithRunID(o.logger)
	logger.Info("findings run started", "integrations", len(integrations))

	for _, i := range integrations {
		for _, e := range i.InitEvents() {
			o.report(e)
		}
	}

	var result *multierror.Error
	for _, i := range integrations {
		kind := strings.TrimSpace(i.Kind())
		name := strings.TrimSpace(i.Name())
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s sync: %w", kind, err))
			break
		}

		integrationLogger := logger.With("kind", kind, "name", name)
		start := time.Now()
		err := i.Run(ctx, registry.IntegrationDeps{
			Logger: integrationLogger,
			Report: o.report,
			Sink:   o.sink(integrationLogger, o.tally),
		})
		metrics.SyncDuration.WithLabelValues(kind, name).Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.SyncRunsTotal.WithLabelValues(kind, name, "failure").Inc()
			integrationLogger.Error("integration sync failed", "err", err)
			result = multierror.Append(result, fmt.Errorf("%s sync: %w", kind, err))
			continue
		}
		metrics.SyncRunsTotal.WithLabelValues(kind, name, "success").Inc()
		metrics.SyncLastSuccessTimestamp.WithLabelValues(kind, name).Set(float64(time.Now().Unix()))
	}

	o.tally.LogSummary(logger)
	err := result.ErrorOrNil()
	o.report(registry.Event{Source: "sync", Stage: "done", Done: true, Err: err, Message: "findings run complete"})
	logger.Info("findings run finished", "failed", failedCount(result))
	return err
}

func failedCount(result *multierror.Error) int {
	if result == nil {
		return 0
	}
	return len(result.Errors)
}
