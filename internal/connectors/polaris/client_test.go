package polaris

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/findings-relay/findings-relay/internal/connectors/restclient"
	"github.com/google/go-cmp/cmp"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

// fakePolaris serves canned bodies keyed by "METHOD path"; unknown routes return 404.
type fakePolaris struct {
	mu       sync.Mutex
	routes   map[string]string
	statuses map[string]int
	requests []*http.Request
}

func newFakePolaris() *fakePolaris {
	return &fakePolaris{routes: make(map[string]string), statuses: make(map[string]int)}
}

func (f *fakePolaris) handle(method, path, body string) {
	f.routes[method+" "+path] = body
}

func (f *fakePolaris) fail(method, path string, status int) {
	f.statuses[method+" "+path] = status
}

func (f *fakePolaris) roundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	key := req.Method + " " + req.URL.Path
	if status, ok := f.statuses[key]; ok {
		return jsonResponse(req, status, `{"errors":[{"title":"failed","detail":"canned failure"}]}`), nil
	}
	body, ok := f.routes[key]
	if !ok {
		return jsonResponse(req, http.StatusNotFound, `{"message":"no route"}`), nil
	}
	return jsonResponse(req, http.StatusOK, body), nil
}

func (f *fakePolaris) lastRequest(method, path string) *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Method == method && f.requests[i].URL.Path == path {
			return f.requests[i]
		}
	}
	return nil
}

func newTestClient(t *testing.T, fake *fakePolaris) *Client {
	t.Helper()
	c, err := New("https://polaris.example.test/", "access-token", &http.Client{Transport: roundTripperFunc(fake.roundTrip)})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return c
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := New("https://polaris.example.test", "  ", nil); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestAuthenticateSendsFormAndStoresJWT(t *testing.T) {
	t.Parallel()

	fake := newFakePolaris()
	fake.handle(http.MethodPost, "/api/auth/v1/authenticate", `{"jwt":"session-jwt"}`)
	fake.handle(http.MethodGet, "/api/common/v0/projects/p1", `{"data":{"attributes":{"name":"payments-api"}}}`)
	c := newTestClient(t, fake)

	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	auth := fake.lastRequest(http.MethodPost, "/api/auth/v1/authenticate")
	if auth == nil {
		t.Fatal("authenticate request not sent")
	}
	if got := auth.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Fatalf("Content-Type = %q", got)
	}
	if err := auth.ParseForm(); err != nil {
		t.Fatalf("ParseForm error: %v", err)
	}
	if got := auth.PostForm.Get("accesstoken"); got != "access-token" {
		t.Fatalf("accesstoken = %q", got)
	}

	name, err := c.GetProjectName(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetProjectName error: %v", err)
	}
	if name != "payments-api" {
		t.Fatalf("name = %q", name)
	}
	req := fake.lastRequest(http.MethodGet, "/api/common/v0/projects/p1")
	if got := req.Header.Get("Authorization"); got != "Bearer session-jwt" {
		t.Fatalf("Authorization = %q", got)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		setup  func(*fakePolaris)
		wantIn string
	}{
		{
			name:   "rejected",
			setup:  func(f *fakePolaris) { f.fail(http.MethodPost, "/api/auth/v1/authenticate", http.StatusUnauthorized) },
			wantIn: "401",
		},
		{
			name:   "missing jwt",
			setup:  func(f *fakePolaris) { f.handle(http.MethodPost, "/api/auth/v1/authenticate", `{"token":"x"}`) },
			wantIn: "jwt missing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakePolaris()
			tt.setup(fake)
			err := newTestClient(t, fake).Authenticate(context.Background())
			if !errors.Is(err, ErrAuthentication) {
				t.Fatalf("expected ErrAuthentication, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantIn) {
				t.Fatalf("error %q does not contain %q", err, tt.wantIn)
			}
		})
	}
}

func TestGetApplicationRequiresName(t *testing.T) {
	t.Parallel()

	fake := newFakePolaris()
	fake.handle(http.MethodGet, "/api/common/v0/applications/app-1", `{"data":{"attributes":{},"relationships":{"projects":{"data":[]}}}}`)
	_, err := newTestClient(t, fake).GetApplication(context.Background(), "app-1")
	var decErr *restclient.DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decErr.Field != "data.attributes.name" {
		t.Fatalf("Field = %q", decErr.Field)
	}
	var opErr *restclient.OpError
	if !errors.As(err, &opErr) || opErr.Op != "get-application" {
		t.Fatalf("expected get-application OpError, got %v", err)
	}
}

func TestListBranchesQuery(t *testing.T) {
	t.Parallel()

	fake := newFakePolaris()
	fake.handle(http.MethodGet, "/api/common/v0/branches", `{"data":[
		{"id":"b1","attributes":{"name":"develop"}},
		{"id":"b2","attributes":{"name":"main","main-for-project":true}}
	]}`)
	branches, err := newTestClient(t, fake).ListBranches(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ListBranches error: %v", err)
	}
	want := []Branch{{ID: "b1", Name: "develop"}, {ID: "b2", Name: "main", MainForProject: true}}
	if diff := cmp.Diff(want, branches); diff != "" {
		t.Fatalf("branches mismatch (-want +got):\n%s", diff)
	}
	q := fake.lastRequest(http.MethodGet, "/api/common/v0/branches").URL.Query()
	if q.Get("page[limit]") != "500" || q.Get("page[offset]") != "0" || q.Get("filter[branch][project][id][$eq]") != "p1" {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestListIssuesDecodesRelationships(t *testing.T) {
	t.Parallel()

	fake := newFakePolaris()
	fake.handle(http.MethodGet, "/api/query/v1/issues", `{"data":[
		{"id":"i1","attributes":{"issue-key":"k1"},"relationships":{"issue-type":{"data":{"id":"t1"}},"latest-observed-on-run":{"data":{"id":"r1"}}}},
		{"id":"i2","attributes":{"issue-key":"k2"},"relationships":{"issue-type":{"data":{"id":"t2"}}}}
	]}`)
	list, err := newTestClient(t, fake).ListIssues(context.Background(), "p1", "b1")
	if err != nil {
		t.Fatalf("ListIssues error: %v", err)
	}
	if len(list.Invalid) != 0 {
		t.Fatalf("unexpected invalid rows %v", list.Invalid)
	}
	want := []Issue{
		{ID: "i1", IssueKey: "k1", IssueTypeID: "t1", LatestRunID: "r1"},
		{ID: "i2", IssueKey: "k2", IssueTypeID: "t2"},
	}
	if diff := cmp.Diff(want, list.Issues); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
	req := fake.lastRequest(http.MethodGet, "/api/query/v1/issues")
	if got := req.Header.Get("Accept"); got != "application/vnd.api+json" {
		t.Fatalf("Accept = %q", got)
	}
	q := req.URL.Query()
	if q.Get("project-id") != "p1" || q.Get("branch-id") != "b1" || q.Get("page[limit]") != "1000" {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestListIssuesSeparatesIncompleteRows(t *testing.T) {
	t.Parallel()

	fake := newFakePolaris()
	fake.handle(http.MethodGet, "/api/query/v1/issues", `{"data":[
		{"id":"i1","attributes":{"issue-key":"k1"},"relationships":{}},
		{"id":"i2","attributes":{"issue-key":"k2"},"relationships":{"issue-type":{"data":{"id":"t2"}}}}
	]}`)
	list, err := newTestClient(t, fake).ListIssues(context.Background(), "p1", "b1")
	if err != nil {
		t.Fatalf("ListIssues error: %v", err)
	}
	if diff := cmp.Diff([]Issue{{ID: "i2", IssueKey: "k2", IssueTypeID: "t2"}}, list.Issues); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
	if len(list.Invalid) != 1 || !strings.Contains(list.Invalid[0].Error(), "data[0].relationships.issue-type.data missing") {
		t.Fatalf("expected missing issue-type error, got %v", list.Invalid)
	}
}

func TestListIssuesRequiresData(t *testing.T) {
	t.Parallel()

	fake := newFakePolaris()
	fake.handle(http.MethodGet, "/api/query/v1/issues", `{}`)
	if _, err := newTestClient(t, fake).ListIssues(context.Background(), "p1", "b1"); err == nil || !strings.Contains(err.Error(), "data missing") {
		t.Fatalf("expected missing data error, got %v", err)
	}
}

func TestGetIssueTransitionsFiltersIncluded(t *testing.T) {
	t.Parallel()

	fake := newFakePolaris()
	fake.handle(http.MethodGet, "/api/query/v1/issues/i1", `{"data":{"id":"i1"},"included":[
		{"type":"issue-type","attributes":{}},
		{"type":"transition","attributes":{"transition-type":"opened","transition-date":"2024-01-05T00:00:00.000000Z"}}
	]}`)
	got, err := newTestClient(t, fake).GetIssueTransitions(context.Background(), "i1", "p1", "b1")
	if err != nil {
		t.Fatalf("GetIssueTransitions error: %v", err)
	}
	want := []Transition{{Type: "opened", Date: "2024-01-05T00:00:00.000000Z"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestGetTriage(t *testing.T) {
	t.Parallel()

	fake := newFakePolaris()
	fake.handle(http.MethodGet, "/api/triage/v1/triage-current/project-id:p1:issue-key:k1", `{"data":{"attributes":{
		"dismissal-status":"REQUESTED",
		"triage-current-values":[{"attribute-semantic-id":"DISMISS","value":"FALSE_POSITIVE"}]
	}}}`)
	triage, err := newTestClient(t, fake).GetTriage(context.Background(), "p1", "k1")
	if err != nil {
		t.Fatalf("GetTriage error: %v", err)
	}
	if !triage.DismissalRequested() {
		t.Fatal("expected dismissal requested")
	}
	if got := triage.Value.Status(); got != "FALSE_POSITIVE" {
		t.Fatalf("Status = %q", got)
	}
}

func TestGetRunRevision(t *testing.T) {
	t.Parallel()

	fake := newFakePolaris()
	fake.handle(http.MethodGet, "/api/common/v0/runs/r1", `{"data":{"relationships":{"revision":{"data":{"id":"rev-7"}}}}}`)
	rev, err := newTestClient(t, fake).GetRunRevision(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRunRevision error: %v", err)
	}
	if rev != "rev-7" {
		t.Fatalf("revision = %q", rev)
	}
}
