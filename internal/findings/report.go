package findings

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/aquilax/truncate"
	"github.com/findings-relay/findings-relay/internal/metrics"
	"github.com/findings-relay/findings-relay/internal/normalize"
)

const (
	displayIDLen = 5
	idEllipsis   = "..."
	dateLayout   = "2006-01-02"
)

// DisplayID shortens ids longer than five characters for log readability.
func DisplayID(id string) string {
	if utf8.RuneCountInString(id) <= displayIDLen {
		return id
	}
	return truncate.Truncate(id, displayIDLen, "", truncate.PositionEnd) + idEllipsis
}

// FormatLine renders the one-line summary for f.
func FormatLine(f Finding) string {
	return fmt.Sprintf("Finding number %s rule %s from %s with severity %s first seen %s status %s",
		DisplayID(f.ID),
		f.Rule,
		f.DetectionCategory,
		normalize.OrDefault(f.Severity, SeverityUnknown),
		f.FirstSeen.Format(dateLayout),
		f.TriageStatus,
	)
}

// LogSink writes each finding as one info record and keeps a per-run tally.
type LogSink struct {
	Logger *slog.Logger
	Tally  *Tally
}

func (s *LogSink) Emit(f Finding) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	severity := normalize.OrDefault(f.Severity, SeverityUnknown)
	logger.Info(FormatLine(f),
		"source", f.Source,
		"project", f.Project,
		"finding_id", f.ID,
		"severity", severity,
		"status", f.TriageStatus,
	)
	metrics.FindingsTotal.WithLabelValues(f.Source, severity).Inc()
	if s.Tally != nil {
		s.Tally.Add(f)
	}
}
