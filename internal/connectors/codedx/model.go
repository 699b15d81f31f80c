package codedx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/findings-relay/findings-relay/internal/findings"
	"github.com/findings-relay/findings-relay/internal/normalize"
)

// firstSeenLayout is the MM/dd/yyyy form of firstSeenOn.
const firstSeenLayout = "01/02/2006"

// ErrInvalidDate means a finding's firstSeenOn could not be parsed.
var ErrInvalidDate = errors.New("codedx finding has an invalid firstSeenOn date")

type Project struct {
	ID   int64
	Name string
}

// RawFinding is one row of the findings table, before normalization.
type RawFinding struct {
	ID              int64
	Severity        string
	DetectionMethod string
	FirstSeenOn     string
	Descriptor      string
	StatusName      string
}

// Normalize converts r into a Finding. Only the date can fail.
func Normalize(r RawFinding) (findings.Finding, error) {
	firstSeen, err := time.Parse(firstSeenLayout, strings.TrimSpace(r.FirstSeenOn))
	if err != nil {
		return findings.Finding{}, fmt.Errorf("%w: finding %d: %q", ErrInvalidDate, r.ID, r.FirstSeenOn)
	}
	return findings.Finding{
		ID:                strconv.FormatInt(r.ID, 10),
		Rule:              r.Descriptor,
		DetectionCategory: r.DetectionMethod,
		Severity:          normalize.OrDefault(r.Severity, findings.SeverityUnknown),
		FirstSeen:         firstSeen,
		TriageStatus:      r.StatusName,
		Source:            Kind,
	}, nil
}
