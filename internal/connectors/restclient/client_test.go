package restclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func newTestClient(t *testing.T, rt roundTripperFunc) *Client {
	t.Helper()
	c, err := New("vendor", "https://example.test/", nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.HTTP.Transport = rt
	return c
}

type nameDoc struct {
	Name *string `json:"name"`
}

func (d nameDoc) Validate() error {
	if d.Name == nil {
		return MissingField("name")
	}
	return nil
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := New("vendor", "", nil); err == nil {
		t.Fatal("expected error for empty base URL")
	}
	if _, err := New("vendor", "example.test", nil); err == nil {
		t.Fatal("expected error for relative base URL")
	}
	if _, err := New("", "https://example.test", nil); err == nil {
		t.Fatal("expected error for missing connector")
	}
}

func TestDoBuildsRequest(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", req.Method)
		}
		if req.URL.Path != "/api/things/a:b" {
			t.Errorf("path = %q", req.URL.Path)
		}
		if got := req.URL.Query().Get("page[limit]"); got != "10" {
			t.Errorf("page[limit] = %q, want 10", got)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer abc" {
			t.Errorf("Authorization = %q", got)
		}
		if got := req.Header.Get("Accept"); got != "application/vnd.api+json" {
			t.Errorf("Accept = %q", got)
		}
		if got := req.Header.Get("Content-Type"); got != contentTypeJSON {
			t.Errorf("Content-Type = %q", got)
		}
		b, _ := io.ReadAll(req.Body)
		if string(b) != `{"k":1}` {
			t.Errorf("body = %s", b)
		}
		return jsonResponse(req, http.StatusOK, `ok`), nil
	})
	c.Authorize = func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }

	body, err := c.Do(context.Background(), Request{
		Op:     "post-thing",
		Method: http.MethodPost,
		Path:   "/api/things/a:b",
		Query:  url.Values{"page[limit]": {"10"}},
		JSON:   map[string]int{"k": 1},
		Accept: "application/vnd.api+json",
	})
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}
}

func TestDoSendsForm(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Content-Type"); got != contentTypeForm {
			t.Errorf("Content-Type = %q", got)
		}
		if err := req.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if got := req.PostForm.Get("accesstoken"); got != "pat" {
			t.Errorf("accesstoken = %q", got)
		}
		return jsonResponse(req, http.StatusOK, `{}`), nil
	})

	if _, err := c.Do(context.Background(), Request{
		Op:     "authenticate",
		Method: http.MethodPost,
		Path:   "/auth",
		Form:   url.Values{"accesstoken": {"pat"}},
	}); err != nil {
		t.Fatalf("Do error: %v", err)
	}
}

func TestDoWrapsAPIErrorWithContext(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		resp := jsonResponse(req, http.StatusNotFound, `{"errors":[{"title":"Not Found","detail":"project p1 does not exist"}]}`)
		resp.Status = "404 Not Found"
		resp.Header.Set("X-Request-Id", "req-9")
		return resp, nil
	})

	_, err := c.Do(context.Background(), Request{Op: "get-project", Path: "/projects/p1", IDs: []any{"project_id", "p1"}})
	if err == nil {
		t.Fatal("expected error")
	}
	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected *OpError, got %T", err)
	}
	if opErr.Op != "get-project" || opErr.Endpoint != "https://example.test/projects/p1" {
		t.Fatalf("unexpected op error: %#v", opErr)
	}
	if !errors.Is(err, ErrAPI) {
		t.Fatal("expected errors.Is(err, ErrAPI)")
	}
	if StatusCode(err) != http.StatusNotFound {
		t.Fatalf("StatusCode = %d", StatusCode(err))
	}
	msg := err.Error()
	for _, want := range []string{"vendor get-project project_id=p1", "404 Not Found", "project p1 does not exist", "request_id=req-9"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
	if IsFatal(err) {
		t.Fatal("404 must not be fatal")
	}
}

func TestDoJSONReportsMissingField(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(req, http.StatusOK, `{"other":"x"}`), nil
	})

	var doc nameDoc
	err := c.DoJSON(context.Background(), Request{Op: "get-name", Path: "/name"}, &doc)
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if decErr.Field != "name" || decErr.Endpoint != "https://example.test/name" {
		t.Fatalf("unexpected decode error: %#v", decErr)
	}
	if !strings.Contains(err.Error(), "name missing") {
		t.Fatalf("error = %q", err)
	}
}

func TestDoJSONDecodes(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(req, http.StatusOK, `{"name":"web"}`), nil
	})

	var doc nameDoc
	if err := c.DoJSON(context.Background(), Request{Op: "get-name", Path: "/name"}, &doc); err != nil {
		t.Fatalf("DoJSON error: %v", err)
	}
	if doc.Name == nil || *doc.Name != "web" {
		t.Fatalf("name = %v", doc.Name)
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	transport := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err := transport.Do(context.Background(), Request{Op: "ping", Path: "/"})
	if !IsFatal(err) {
		t.Fatalf("transport error should be fatal: %v", err)
	}

	unauthorized := &OpError{Err: &APIError{StatusCode: http.StatusUnauthorized}}
	if !IsFatal(unauthorized) {
		t.Fatal("401 should be fatal")
	}
	if !IsFatal(context.Canceled) {
		t.Fatal("cancellation should be fatal")
	}
	if IsFatal(MissingField("data")) {
		t.Fatal("decode errors should not be fatal")
	}
	if IsFatal(nil) {
		t.Fatal("nil is not fatal")
	}
}

func TestExtractAPIErrorMessage(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		`{"errors":["bad token"]}`:    "bad token",
		`{"error":"nope"}`:            "nope",
		`{"message":"  spaced  "}`:    "spaced",
		"<html><body>x</body></html>": "",
		"plain\n text":                "plain text",
	}
	for body, want := range tests {
		if got := extractAPIErrorMessage([]byte(body)); got != want {
			t.Fatalf("extractAPIErrorMessage(%q) = %q, want %q", body, got, want)
		}
	}
}
