package polaris

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/findings-relay/findings-relay/internal/connectors/restclient"
)

// Response documents for the JSON:API endpoints. Pointer fields are required; Validate reports
// the first one that is absent or null by its JSON path.

type resourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type relationship struct {
	Data *resourceRef `json:"data"`
}

type authDocument struct {
	JWT string `json:"jwt"`
}

func (d authDocument) Validate() error {
	if strings.TrimSpace(d.JWT) == "" {
		return restclient.MissingField("jwt")
	}
	return nil
}

type applicationDocument struct {
	Data *struct {
		ID         string `json:"id"`
		Attributes struct {
			Name *string `json:"name"`
		} `json:"attributes"`
		Relationships struct {
			Projects struct {
				Data *[]resourceRef `json:"data"`
			} `json:"projects"`
		} `json:"relationships"`
	} `json:"data"`
}

func (d applicationDocument) Validate() error {
	switch {
	case d.Data == nil:
		return restclient.MissingField("data")
	case d.Data.Attributes.Name == nil:
		return restclient.MissingField("data.attributes.name")
	case d.Data.Relationships.Projects.Data == nil:
		return restclient.MissingField("data.relationships.projects.data")
	}
	for i, p := range *d.Data.Relationships.Projects.Data {
		if strings.TrimSpace(p.ID) == "" {
			return restclient.MissingField(fmt.Sprintf("data.relationships.projects.data[%d].id", i))
		}
	}
	return nil
}

type projectDocument struct {
	Data *struct {
		Attributes struct {
			Name *string `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
}

func (d projectDocument) Validate() error {
	if d.Data == nil {
		return restclient.MissingField("data")
	}
	if d.Data.Attributes.Name == nil {
		return restclient.MissingField("data.attributes.name")
	}
	return nil
}

type branchesDocument struct {
	Data *[]struct {
		ID         string `json:"id"`
		Attributes struct {
			Name           string `json:"name"`
			MainForProject *bool  `json:"main-for-project"`
		} `json:"attributes"`
	} `json:"data"`
}

func (d branchesDocument) Validate() error {
	if d.Data == nil {
		return restclient.MissingField("data")
	}
	return nil
}

type issuesDocument struct {
	Data *[]struct {
		ID         string `json:"id"`
		Attributes struct {
			IssueKey *string `json:"issue-key"`
		} `json:"attributes"`
		Relationships struct {
			IssueType           relationship `json:"issue-type"`
			LatestObservedOnRun relationship `json:"latest-observed-on-run"`
		} `json:"relationships"`
	} `json:"data"`
}

// Validate checks the envelope only; rows are checked one by one in records.
func (d issuesDocument) Validate() error {
	if d.Data == nil {
		return restclient.MissingField("data")
	}
	return nil
}

// records splits the page into complete issues and one error per row missing a required field.
func (d issuesDocument) records() ([]Issue, []error) {
	var (
		out     = make([]Issue, 0, len(*d.Data))
		invalid []error
	)
	for i, row := range *d.Data {
		missing := ""
		switch {
		case strings.TrimSpace(row.ID) == "":
			missing = "id"
		case row.Attributes.IssueKey == nil:
			missing = "attributes.issue-key"
		case row.Relationships.IssueType.Data == nil:
			missing = "relationships.issue-type.data"
		}
		if missing != "" {
			invalid = append(invalid, restclient.MissingField(fmt.Sprintf("data[%d].%s", i, missing)))
			continue
		}
		issue := Issue{
			ID:          row.ID,
			IssueKey:    *row.Attributes.IssueKey,
			IssueTypeID: row.Relationships.IssueType.Data.ID,
		}
		if run := row.Relationships.LatestObservedOnRun.Data; run != nil {
			issue.LatestRunID = run.ID
		}
		out = append(out, issue)
	}
	return out, invalid
}

type taxonomiesDocument struct {
	Data *[]struct {
		ID           string `json:"id"`
		TaxonomyType string `json:"taxonomy-type"`
		Taxonomy     struct {
			Taxa []struct {
				ID         string   `json:"id"`
				IssueTypes []string `json:"issue-types"`
			} `json:"taxa"`
		} `json:"taxonomy"`
	} `json:"data"`
}

func (d taxonomiesDocument) Validate() error {
	if d.Data == nil {
		return restclient.MissingField("data")
	}
	return nil
}

type issueTypeDocument struct {
	Data *struct {
		Attributes struct {
			IssueTypeID *string `json:"issue-type-id"`
		} `json:"attributes"`
	} `json:"data"`
}

func (d issueTypeDocument) Validate() error {
	if d.Data == nil {
		return restclient.MissingField("data")
	}
	if d.Data.Attributes.IssueTypeID == nil {
		return restclient.MissingField("data.attributes.issue-type-id")
	}
	return nil
}

type issueDetailDocument struct {
	Included *[]struct {
		Type       string `json:"type"`
		Attributes struct {
			TransitionType string `json:"transition-type"`
			TransitionDate string `json:"transition-date"`
		} `json:"attributes"`
	} `json:"included"`
}

func (d issueDetailDocument) Validate() error {
	if d.Included == nil {
		return restclient.MissingField("included")
	}
	return nil
}

type triageDocument struct {
	Data *struct {
		Attributes struct {
			DismissalStatus     string `json:"dismissal-status"`
			TriageCurrentValues *[]struct {
				AttributeSemanticID string          `json:"attribute-semantic-id"`
				Value               json.RawMessage `json:"value"`
			} `json:"triage-current-values"`
		} `json:"attributes"`
	} `json:"data"`
}

func (d triageDocument) Validate() error {
	if d.Data == nil {
		return restclient.MissingField("data")
	}
	if d.Data.Attributes.TriageCurrentValues == nil {
		return restclient.MissingField("data.attributes.triage-current-values")
	}
	return nil
}

type runDocument struct {
	Data *struct {
		Relationships struct {
			Revision relationship `json:"revision"`
		} `json:"relationships"`
	} `json:"data"`
}

func (d runDocument) Validate() error {
	if d.Data == nil {
		return restclient.MissingField("data")
	}
	if d.Data.Relationships.Revision.Data == nil || strings.TrimSpace(d.Data.Relationships.Revision.Data.ID) == "" {
		return restclient.MissingField("data.relationships.revision.data.id")
	}
	return nil
}
