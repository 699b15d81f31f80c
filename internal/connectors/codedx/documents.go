package codedx

import (
	"fmt"

	"github.com/findings-relay/findings-relay/internal/connectors/restclient"
)

type named struct {
	Name *string `json:"name"`
}

// projectsDocument is the bare array returned by the project query endpoint.
type projectsDocument []struct {
	ID   *int64  `json:"id"`
	Name *string `json:"name"`
}

func (d projectsDocument) Validate() error {
	for i, p := range d {
		switch {
		case p.ID == nil:
			return restclient.MissingField(fmt.Sprintf("[%d].id", i))
		case p.Name == nil:
			return restclient.MissingField(fmt.Sprintf("[%d].name", i))
		}
	}
	return nil
}

type projectDocument named

func (d projectDocument) Validate() error {
	if d.Name == nil {
		return restclient.MissingField("name")
	}
	return nil
}

// findingsDocument is the bare array returned by the findings table endpoint.
type findingsDocument []struct {
	ID              *int64  `json:"id"`
	Severity        *named  `json:"severity"`
	DetectionMethod *named  `json:"detectionMethod"`
	FirstSeenOn     *string `json:"firstSeenOn"`
	Descriptor      *named  `json:"descriptor"`
	StatusName      *string `json:"statusName"`
}

// Validate checks the envelope only; rows are checked one by one in records.
func (d findingsDocument) Validate() error {
	if d == nil {
		return restclient.MissingField("findings")
	}
	return nil
}

// records splits the table into complete rows and one error per row missing a required field.
func (d findingsDocument) records() ([]RawFinding, []error) {
	var (
		out     = make([]RawFinding, 0, len(d))
		invalid []error
	)
	for i, f := range d {
		missing := ""
		switch {
		case f.ID == nil:
			missing = "id"
		case f.Severity == nil || f.Severity.Name == nil:
			missing = "severity.name"
		case f.DetectionMethod == nil || f.DetectionMethod.Name == nil:
			missing = "detectionMethod.name"
		case f.FirstSeenOn == nil:
			missing = "firstSeenOn"
		case f.Descriptor == nil || f.Descriptor.Name == nil:
			missing = "descriptor.name"
		case f.StatusName == nil:
			missing = "statusName"
		}
		if missing != "" {
			invalid = append(invalid, restclient.MissingField(fmt.Sprintf("[%d].%s", i, missing)))
			continue
		}
		out = append(out, RawFinding{
			ID:              *f.ID,
			Severity:        *f.Severity.Name,
			DetectionMethod: *f.DetectionMethod.Name,
			FirstSeenOn:     *f.FirstSeenOn,
			Descriptor:      *f.Descriptor.Name,
			StatusName:      *f.StatusName,
		})
	}
	return out, invalid
}
