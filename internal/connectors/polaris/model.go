package polaris

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/findings-relay/findings-relay/internal/findings"
	"github.com/findings-relay/findings-relay/internal/normalize"
)

const (
	taxonomyTypeSeverity = "severity"
	transitionTypeOpened = "opened"
	includedTransition   = "transition"
	semanticIDDismiss    = "DISMISS"
	dismissalRequested   = "REQUESTED"
)

// ErrNoOpenTransition means an issue detail carried no parsable "opened" transition.
var ErrNoOpenTransition = errors.New("polaris issue has no opened transition")

type Application struct {
	ID         string
	Name       string
	ProjectIDs []string
}

type Branch struct {
	ID             string
	Name           string
	MainForProject bool
}

type Issue struct {
	ID          string
	IssueKey    string
	IssueTypeID string
	LatestRunID string
}

type Taxon struct {
	ID         string
	IssueTypes []string
}

type Taxonomy struct {
	ID   string
	Type string
	Taxa []Taxon
}

type Transition struct {
	Type string
	Date string
}

// SeverityTaxonomy maps an issue type name to its severity category id.
type SeverityTaxonomy map[string]string

// BuildSeverityTaxonomy flattens the first taxonomy of type "severity". Without one the
// result is empty and every lookup yields Unknown.
func BuildSeverityTaxonomy(taxonomies []Taxonomy) SeverityTaxonomy {
	out := make(SeverityTaxonomy)
	for _, tax := range taxonomies {
		if !normalize.EqualFoldTrimmed(tax.Type, taxonomyTypeSeverity) {
			continue
		}
		for _, taxon := range tax.Taxa {
			for _, name := range taxon.IssueTypes {
				out[name] = taxon.ID
			}
		}
		break
	}
	return out
}

// Lookup returns the severity for an issue type name, or Unknown.
func (t SeverityTaxonomy) Lookup(issueTypeName string) string {
	if sev, ok := t[issueTypeName]; ok {
		return normalize.OrDefault(sev, findings.SeverityUnknown)
	}
	return findings.SeverityUnknown
}

// SelectMainBranch returns the first branch flagged main-for-project.
func SelectMainBranch(branches []Branch) (Branch, bool) {
	for _, b := range branches {
		if b.MainForProject {
			return b, true
		}
	}
	return Branch{}, false
}

// OpenedDates returns the parsed dates of all "opened" transitions, plus the raw values
// that failed to parse.
func OpenedDates(transitions []Transition) ([]time.Time, []string) {
	var (
		dates   []time.Time
		invalid []string
	)
	for _, tr := range transitions {
		if !normalize.EqualFoldTrimmed(tr.Type, transitionTypeOpened) {
			continue
		}
		t, err := parseTransitionDate(tr.Date)
		if err != nil {
			invalid = append(invalid, tr.Date)
			continue
		}
		dates = append(dates, t)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, invalid
}

// MostRecentOpen is the latest "opened" transition date, a proxy for first-seen.
func MostRecentOpen(transitions []Transition) (time.Time, error) {
	dates, _ := OpenedDates(transitions)
	if len(dates) == 0 {
		return time.Time{}, ErrNoOpenTransition
	}
	return dates[len(dates)-1], nil
}

// Transition dates are UTC with microseconds and a literal Z, e.g. 2024-01-05T00:00:00.000000Z.
func parseTransitionDate(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// TriageKind separates an explicit null dismissal from a missing one.
type TriageKind int

const (
	NoDismissEntry TriageKind = iota
	NotDismissed
	Dismissed
)

// TriageValue is the current DISMISS attribute of an issue.
type TriageValue struct {
	Kind   TriageKind
	Reason string
}

// Status renders the value for the report line.
func (v TriageValue) Status() string {
	switch v.Kind {
	case NotDismissed:
		return findings.TriageNotDismissed
	case Dismissed:
		return v.Reason
	default:
		return findings.TriageUnknown
	}
}

type TriageCurrentValue struct {
	SemanticID string
	Value      json.RawMessage
}

type Triage struct {
	DismissalStatus string
	Value           TriageValue
}

// DismissalRequested reports whether a dismissal is waiting for approval.
func (t Triage) DismissalRequested() bool {
	return normalize.EqualFoldTrimmed(t.DismissalStatus, dismissalRequested)
}

// ParseTriageValues picks the DISMISS entry; when several exist the last one wins.
// An entry without a value key is treated like no entry.
func ParseTriageValues(values []TriageCurrentValue) TriageValue {
	out := TriageValue{Kind: NoDismissEntry}
	for _, v := range values {
		if !normalize.EqualFoldTrimmed(v.SemanticID, semanticIDDismiss) {
			continue
		}
		raw := bytes.TrimSpace(v.Value)
		switch {
		case len(raw) == 0:
			out = TriageValue{Kind: NoDismissEntry}
		case bytes.Equal(raw, []byte("null")):
			out = TriageValue{Kind: NotDismissed}
		default:
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				out = TriageValue{Kind: Dismissed, Reason: s}
			} else {
				out = TriageValue{Kind: Dismissed, Reason: string(raw)}
			}
		}
	}
	return out
}

// ApprovalReviewURL is the UI page where a pending dismissal is approved.
func ApprovalReviewURL(baseURL, projectID, branchID, revisionID, issueID string) string {
	return strings.TrimRight(baseURL, "/") +
		"/projects/" + url.PathEscape(projectID) +
		"/branches/" + url.PathEscape(branchID) +
		"/revisions/" + url.PathEscape(revisionID) +
		"/issues/" + url.PathEscape(issueID)
}
