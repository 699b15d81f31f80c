package codedx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/findings-relay/findings-relay/internal/connectors/restclient"
)

const (
	Kind = "codedx"

	DefaultPageSize = 100
)

type Client struct {
	rest          *restclient.Client
	pageSize      int
	swappedPaging bool
}

// Options tune the project query. SwappedPaging sends offset=<page size>, limit=0 for
// Code Dx v2022.1.2, which reads the two fields the other way round.
type Options struct {
	PageSize      int
	SwappedPaging bool
}

func New(baseURL, token string, httpClient *http.Client, opts Options) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("codedx token is required")
	}
	rest, err := restclient.New(Kind, baseURL, httpClient)
	if err != nil {
		return nil, err
	}
	rest.Authorize = func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	return &Client{rest: rest, pageSize: opts.PageSize, swappedPaging: opts.SwappedPaging}, nil
}

type projectQuery struct {
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
	Filter projectFilter `json:"filter"`
}

type projectFilter struct {
	ParentID int64 `json:"parentId"`
}

func (c *Client) projectQuery(parentID int64) projectQuery {
	q := projectQuery{Offset: 0, Limit: c.pageSize, Filter: projectFilter{ParentID: parentID}}
	if c.swappedPaging {
		q.Offset, q.Limit = c.pageSize, 0
	}
	return q
}

// ListChildProjects returns the first page of projects directly under parentID.
func (c *Client) ListChildProjects(ctx context.Context, parentID int64) ([]Project, error) {
	var doc projectsDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:     "list-child-projects",
		Method: http.MethodPost,
		Path:   "/codedx/api/projects/query",
		JSON:   c.projectQuery(parentID),
		IDs:    []any{"parent_id", parentID},
	}, &doc)
	if err != nil {
		return nil, err
	}
	out := make([]Project, 0, len(doc))
	for _, p := range doc {
		out = append(out, Project{ID: *p.ID, Name: *p.Name})
	}
	return out, nil
}

func (c *Client) GetProjectName(ctx context.Context, projectID int64) (string, error) {
	var doc projectDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:   "get-project",
		Path: "/codedx/api/projects/" + strconv.FormatInt(projectID, 10),
		IDs:  []any{"project_id", projectID},
	}, &doc)
	if err != nil {
		return "", err
	}
	return *doc.Name, nil
}

// FindingsTable is one decoded findings table. Invalid holds one error per row that lacked a
// required field; those rows are not in Findings.
type FindingsTable struct {
	Findings []RawFinding
	Invalid  []error
}

// ListFindings returns the findings table of a project and its descendants ("d" prefix).
func (c *Client) ListFindings(ctx context.Context, projectID int64) (FindingsTable, error) {
	var doc findingsDocument
	err := c.rest.DoJSON(ctx, restclient.Request{
		Op:     "list-findings",
		Method: http.MethodPost,
		Path:   "/codedx/api/projects/d" + strconv.FormatInt(projectID, 10) + "/findings/table",
		JSON:   struct{}{},
		IDs:    []any{"project_id", projectID},
	}, &doc)
	if err != nil {
		return FindingsTable{}, err
	}
	rows, invalid := doc.records()
	return FindingsTable{Findings: rows, Invalid: invalid}, nil
}
