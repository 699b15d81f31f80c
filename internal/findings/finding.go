// Package findings holds the vendor-neutral finding record and the line-oriented report for it.
package findings

import "time"

const (
	// SeverityUnknown is reported whenever a vendor gives no usable severity.
	SeverityUnknown = "Unknown"
	// CategoryStaticAnalysis is the detection category of every Polaris issue.
	CategoryStaticAnalysis = "Static Analysis"
	// TriageNotDismissed marks an issue whose dismiss attribute is explicitly empty.
	TriageNotDismissed = "NOT_DISMISSED"
	// TriageUnknown marks an issue without a usable dismiss attribute.
	TriageUnknown = "Unknown"
)

// Finding is one normalized vendor result. Source and Project only travel as log context.
type Finding struct {
	ID                string
	Rule              string
	DetectionCategory string
	Severity          string
	FirstSeen         time.Time
	TriageStatus      string

	Source  string
	Project string
}

// Sink receives findings in the order adapters produce them.
type Sink interface {
	Emit(Finding)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Finding)

func (f SinkFunc) Emit(v Finding) { f(v) }
