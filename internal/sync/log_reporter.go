package sync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/findings-relay/findings-relay/internal/connectors/registry"
)

const (
	defaultProgressInterval    = 5 * time.Second
	defaultProgressPercentStep = int64(5)
)

type stageKey struct {
	source string
	stage  string
}

type stageState struct {
	loggedAt time.Time
	percent  int64
}

// LogReporter logs events to slog: errors always, progress throttled per source and stage.
type LogReporter struct {
	Logger              *slog.Logger
	ProgressInterval    time.Duration
	ProgressPercentStep int64

	mu     sync.Mutex
	stages map[stageKey]stageState
}

func (r *LogReporter) Report(e registry.Event) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := e.At
	if now.IsZero() {
		now = time.Now()
	}

	attrs := []any{"source", e.Source}
	if e.Stage != "" {
		attrs = append(attrs, "stage", e.Stage)
	}
	switch {
	case e.Total > 0:
		attrs = append(attrs, "current", e.Current, "total", e.Total, "percent", progressPercent(e.Current, e.Total))
	case e.Current != 0:
		attrs = append(attrs, "current", e.Current)
	}

	if e.Err != nil {
		message := e.Message
		if message == "" || message == e.Err.Error() {
			message = failureMessage(e)
		}
		logger.Error(message, append(attrs, "err", e.Err)...)
		return
	}

	message := e.Message
	if message == "" {
		if !e.Done {
			return
		}
		message = "sync complete"
	}

	// Stage announcements carry no progress yet.
	if !e.Done && e.Current == 0 && (e.Total == registry.UnknownTotal || e.Total > 1) {
		r.record(now, e)
		logger.Debug(message, attrs...)
		return
	}
	if !r.shouldLog(now, e) {
		return
	}
	logger.Info(message, attrs...)
}

func failureMessage(e registry.Event) string {
	switch {
	case e.Source != "" && e.Stage != "":
		return e.Source + " " + e.Stage + " failed"
	case e.Source != "":
		return e.Source + " failed"
	default:
		return "sync failed"
	}
}

func (r *LogReporter) shouldLog(now time.Time, e registry.Event) bool {
	if e.Done || e.Total == 0 || e.Total == 1 {
		return true
	}
	if e.Total > 1 && e.Current >= e.Total {
		r.record(now, e)
		return true
	}

	interval := r.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	step := r.ProgressPercentStep
	if step <= 0 {
		step = defaultProgressPercentStep
	}

	r.mu.Lock()
	state, seen := r.stages[stageKey{source: e.Source, stage: e.Stage}]
	r.mu.Unlock()
	if seen && now.Sub(state.loggedAt) < interval {
		// Unknown totals only log on the interval.
		if e.Total <= 0 {
			return false
		}
		if progressPercent(e.Current, e.Total) < state.percent+step {
			return false
		}
	}
	r.record(now, e)
	return true
}

// record remembers the last logged point, with the percent rounded down to the step.
func (r *LogReporter) record(now time.Time, e registry.Event) {
	step := r.ProgressPercentStep
	if step <= 0 {
		step = defaultProgressPercentStep
	}
	percent := progressPercent(e.Current, e.Total)
	if percent > 0 {
		percent = (percent / step) * step
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages == nil {
		r.stages = make(map[stageKey]stageState)
	}
	r.stages[stageKey{source: e.Source, stage: e.Stage}] = stageState{loggedAt: now, percent: percent}
}

func progressPercent(current, total int64) int64 {
	switch {
	case total <= 0, current <= 0:
		return 0
	case current >= total:
		return 100
	default:
		return (current * 100) / total
	}
}
