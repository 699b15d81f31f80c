package findings

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/findings-relay/findings-relay/internal/normalize"
)

// Tally counts emitted findings per source and severity.
type Tally struct {
	mu     sync.Mutex
	counts map[string]map[string]int
}

func NewTally() *Tally {
	return &Tally{counts: make(map[string]map[string]int)}
}

func (t *Tally) Add(f Finding) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts == nil {
		t.counts = make(map[string]map[string]int)
	}
	bySeverity := t.counts[f.Source]
	if bySeverity == nil {
		bySeverity = make(map[string]int)
		t.counts[f.Source] = bySeverity
	}
	bySeverity[normalize.OrDefault(f.Severity, SeverityUnknown)]++
}

// Count returns the number of findings seen for source; an empty severity means all severities.
func (t *Tally) Count(source, severity string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	bySeverity := t.counts[source]
	if severity != "" {
		return bySeverity[severity]
	}
	n := 0
	for _, c := range bySeverity {
		n += c
	}
	return n
}

// Sources returns every source with at least one finding, sorted.
func (t *Tally) Sources() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.counts))
	for src := range t.counts {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// LogSummary writes one record per source.
func (t *Tally) LogSummary(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, src := range t.Sources() {
		t.mu.Lock()
		attrs := make([]any, 0, len(t.counts[src]))
		severities := make([]string, 0, len(t.counts[src]))
		for sev := range t.counts[src] {
			severities = append(severities, sev)
		}
		sort.Strings(severities)
		for _, sev := range severities {
			attrs = append(attrs, slog.Int(sev, t.counts[src][sev]))
		}
		t.mu.Unlock()
		logger.Info("findings summary",
			"source", src,
			"total", t.Count(src, ""),
			slog.Group("by_severity", attrs...),
		)
	}
}
