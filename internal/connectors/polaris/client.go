package polaris

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/findings-relay/findings-relay/internal/connectors/restclient"
)

const (
	Kind = "polaris"

	branchPageLimit   = 500
	issuePageLimit    = 1000
	taxonomyPageLimit = 1000

	acceptJSONAPI = "application/vnd.api+json"
)

var (
	// ErrAuthentication wraps a failed exchange of the access token for a session JWT.
	ErrAuthentication = errors.New("polaris authentication failed")
	// ErrSessionRejected means the session JWT stopped being accepted mid-run. It is not refreshed.
	ErrSessionRejected = errors.New("polaris session rejected")
)

// Client talks to one Polaris instance. Authenticate must succeed before any other call.
type Client struct {
	rest        *restclient.Client
	accessToken string
	jwt         string
}

func New(baseURL, accessToken string, httpClient *http.Client) (*Client, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, errors.New("polaris access token is required")
	}
	rest, err := restclient.New(Kind, baseURL, httpClient)
	if err != nil {
		return nil, err
	}
	c := &Client{rest: rest, accessToken: accessToken}
	rest.Authorize = c.authorize
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.rest.BaseURL
}

func (c *Client) authorize(req *http.Request) {
	if c.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.jwt)
	}
}

// Authenticate exchanges the long-lived access token for a short-lived JWT. The JWT is not
// refreshed; a long pass can outlive it.
func (c *Client) Authenticate(ctx context.Context) error {
	c.jwt = ""
	var doc authDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:     "authenticate",
		Method: http.MethodPost,
		Path:   "/api/auth/v1/authenticate",
		Form:   url.Values{"accesstoken": {c.accessToken}},
	}, &doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	c.jwt = doc.JWT
	return nil
}

func (c *Client) GetApplication(ctx context.Context, applicationID string) (Application, error) {
	var doc applicationDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:   "get-application",
		Path: "/api/common/v0/applications/" + url.PathEscape(applicationID),
		IDs:  []any{"application_id", applicationID},
	}, &doc)
	if err != nil {
		return Application{}, err
	}
	app := Application{
		ID:   applicationID,
		Name: *doc.Data.Attributes.Name,
	}
	for _, p := range *doc.Data.Relationships.Projects.Data {
		app.ProjectIDs = append(app.ProjectIDs, p.ID)
	}
	return app, nil
}

func (c *Client) GetProjectName(ctx context.Context, projectID string) (string, error) {
	var doc projectDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:   "get-project",
		Path: "/api/common/v0/projects/" + url.PathEscape(projectID),
		IDs:  []any{"project_id", projectID},
	}, &doc)
	if err != nil {
		return "", err
	}
	return *doc.Data.Attributes.Name, nil
}

// ListBranches returns the first page of branches of a project.
func (c *Client) ListBranches(ctx context.Context, projectID string) ([]Branch, error) {
	var doc branchesDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:   "list-branches",
		Path: "/api/common/v0/branches",
		Query: url.Values{
			"page[limit]":                      {strconv.Itoa(branchPageLimit)},
			"page[offset]":                     {"0"},
			"filter[branch][project][id][$eq]": {projectID},
		},
		IDs: []any{"project_id", projectID},
	}, &doc)
	if err != nil {
		return nil, err
	}
	out := make([]Branch, 0, len(*doc.Data))
	for _, b := range *doc.Data {
		out = append(out, Branch{
			ID:             b.ID,
			Name:           b.Attributes.Name,
			MainForProject: b.Attributes.MainForProject != nil && *b.Attributes.MainForProject,
		})
	}
	return out, nil
}

// IssueList is one decoded issue page. Invalid holds one error per row that lacked a required
// field; those rows are not in Issues.
type IssueList struct {
	Issues  []Issue
	Invalid []error
}

// ListIssues returns the first page of issues on a project branch.
func (c *Client) ListIssues(ctx context.Context, projectID, branchID string) (IssueList, error) {
	var doc issuesDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:   "list-issues",
		Path: "/api/query/v1/issues",
		Query: url.Values{
			"project-id":   {projectID},
			"branch-id":    {branchID},
			"page[limit]":  {strconv.Itoa(issuePageLimit)},
			"page[offset]": {"0"},
		},
		Accept: acceptJSONAPI,
		IDs:    []any{"project_id", projectID, "branch_id", branchID},
	}, &doc)
	if err != nil {
		return IssueList{}, err
	}
	issues, invalid := doc.records()
	return IssueList{Issues: issues, Invalid: invalid}, nil
}

func (c *Client) ListTaxonomies(ctx context.Context) ([]Taxonomy, error) {
	var doc taxonomiesDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:   "list-taxonomies",
		Path: "/api/taxonomy/v0/taxonomies",
		Query: url.Values{
			"page[limit]":  {strconv.Itoa(taxonomyPageLimit)},
			"page[offset]": {"0"},
		},
	}, &doc)
	if err != nil {
		return nil, err
	}
	out := make([]Taxonomy, 0, len(*doc.Data))
	for _, d := range *doc.Data {
		tax := Taxonomy{ID: d.ID, Type: d.TaxonomyType}
		for _, t := range d.Taxonomy.Taxa {
			tax.Taxa = append(tax.Taxa, Taxon{ID: t.ID, IssueTypes: t.IssueTypes})
		}
		out = append(out, tax)
	}
	return out, nil
}

// GetIssueTypeName resolves the issue type name used as the severity taxonomy key.
func (c *Client) GetIssueTypeName(ctx context.Context, issueTypeID string) (string, error) {
	var doc issueTypeDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:     "get-issue-type",
		Path:   "/api/query/v0/issue-types/" + url.PathEscape(issueTypeID),
		Accept: acceptJSONAPI,
		IDs:    []any{"issue_type_id", issueTypeID},
	}, &doc)
	if err != nil {
		return "", err
	}
	return *doc.Data.Attributes.IssueTypeID, nil
}

// GetIssueTransitions returns the state transitions included with the issue detail.
func (c *Client) GetIssueTransitions(ctx context.Context, issueID, projectID, branchID string) ([]Transition, error) {
	var doc issueDetailDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:   "get-issue-detail",
		Path: "/api/query/v1/issues/" + url.PathEscape(issueID),
		Query: url.Values{
			"project-id": {projectID},
			"branch-id":  {branchID},
		},
		Accept: acceptJSONAPI,
		IDs:    []any{"issue_id", issueID, "project_id", projectID, "branch_id", branchID},
	}, &doc)
	if err != nil {
		return nil, err
	}
	var out []Transition
	for _, inc := range *doc.Included {
		if inc.Type != includedTransition {
			continue
		}
		out = append(out, Transition{
			Type: inc.Attributes.TransitionType,
			Date: inc.Attributes.TransitionDate,
		})
	}
	return out, nil
}

func (c *Client) GetTriage(ctx context.Context, projectID, issueKey string) (Triage, error) {
	var doc triageDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:     "get-triage",
		Path:   "/api/triage/v1/triage-current/project-id:" + url.PathEscape(projectID) + ":issue-key:" + url.PathEscape(issueKey),
		Accept: acceptJSONAPI,
		IDs:    []any{"project_id", projectID, "issue_key", issueKey},
	}, &doc)
	if err != nil {
		return Triage{}, err
	}
	values := make([]TriageCurrentValue, 0, len(*doc.Data.Attributes.TriageCurrentValues))
	for _, v := range *doc.Data.Attributes.TriageCurrentValues {
		values = append(values, TriageCurrentValue{SemanticID: v.AttributeSemanticID, Value: v.Value})
	}
	return Triage{
		DismissalStatus: doc.Data.Attributes.DismissalStatus,
		Value:           ParseTriageValues(values),
	}, nil
}

// GetRunRevision returns the revision id a scan run was taken from.
func (c *Client) GetRunRevision(ctx context.Context, runID string) (string, error) {
	var doc runDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:     "get-run",
		Path:   "/api/common/v0/runs/" + url.PathEscape(runID),
		Accept: acceptJSONAPI,
		IDs:    []any{"run_id", runID},
	}, &doc)
	if err != nil {
		return "", err
	}
	return doc.Data.Relationships.Revision.Data.ID, nil
}
