// Package restclient is the thin HTTP layer shared by the vendor connectors: one named
// operation per round trip, typed errors that carry the endpoint and identifiers involved,
// and per-operation metrics. It never retries.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/findings-relay/findings-relay/internal/metrics"
	"github.com/findings-relay/findings-relay/internal/normalize"
)

const (
	DefaultTimeout = 120 * time.Second

	maxBodySize     = 32 << 20 // 32 MiB
	maxMessageLen   = 300
	userAgent       = "findings-relay"
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

type Client struct {
	Connector string
	BaseURL   string
	HTTP      *http.Client
	// Authorize decorates every request; nil sends requests unauthenticated.
	Authorize func(*http.Request)
}

// Request describes one vendor round trip. IDs are key/value pairs reported on failure.
type Request struct {
	Op     string
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	JSON   any
	Accept string
	IDs    []any
}

// Validator is implemented by response documents that check their required fields.
type Validator interface {
	Validate() error
}

// New validates the base URL and returns a client with the default timeout.
func New(connector, baseURL string, httpClient *http.Client) (*Client, error) {
	connector = strings.TrimSpace(connector)
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if connector == "" {
		return nil, errors.New("connector name is required")
	}
	if base == "" {
		return nil, fmt.Errorf("%s base URL is required", connector)
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s base URL %q is not an absolute URL", connector, base)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		Connector: connector,
		BaseURL:   base,
		HTTP:      httpClient,
	}, nil
}

// Do performs req and returns the body of a 2xx response.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	endpoint, err := c.endpoint(req.Path, req.Query)
	if err != nil {
		return nil, c.opError(req, "", err)
	}
	body, err := c.do(ctx, req, endpoint)
	if err != nil {
		return nil, c.opError(req, endpoint, err)
	}
	return body, nil
}

// DoJSON performs req and decodes the body into out, running out.Validate when available.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	endpoint, err := c.endpoint(req.Path, req.Query)
	if err != nil {
		return c.opError(req, "", err)
	}
	body, err := c.do(ctx, req, endpoint)
	if err != nil {
		return c.opError(req, endpoint, err)
	}
	if err := DecodeJSON(body, out); err != nil {
		var decErr *DecodeError
		if errors.As(err, &decErr) {
			decErr.Endpoint = safeURL(endpoint)
		}
		return c.opError(req, endpoint, err)
	}
	return nil
}

// DecodeJSON unmarshals body and validates required fields.
func DecodeJSON(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Err: err}
	}
	v, ok := out.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		var decErr *DecodeError
		if errors.As(err, &decErr) {
			return err
		}
		return &DecodeError{Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, req Request, endpoint string) ([]byte, error) {
	if c == nil || c.HTTP == nil {
		return nil, errors.New("http client is not configured")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		payload     io.Reader
		contentType string
	)
	switch {
	case req.Form != nil:
		payload = strings.NewReader(req.Form.Encode())
		contentType = contentTypeForm
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(b)
		contentType = contentTypeJSON
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return nil, err
	}
	accept := req.Accept
	if accept == "" {
		accept = contentTypeJSON
	}
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.Authorize != nil {
		c.Authorize(httpReq)
	}

	started := time.Now()
	resp, err := c.HTTP.Do(httpReq)
	elapsed := time.Since(started)
	metrics.APIRequestDuration.WithLabelValues(c.Connector, req.Op).Observe(elapsed.Seconds())
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(c.Connector, req.Op, "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	metrics.APIRequestsTotal.WithLabelValues(c.Connector, req.Op, status).Inc()
	slog.Debug("vendor api call", "connector", c.Connector, "op", req.Op, "status", resp.StatusCode, "duration_ms", elapsed.Milliseconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    extractAPIErrorMessage(body),
			Details:    formatAPIErrorDetails(endpoint, resp),
		}
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBodySize)
	}
	return body, nil
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	u = u.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	u.Fragment = ""
	return u.String(), nil
}

func (c *Client) opError(req Request, endpoint string, err error) error {
	return &OpError{
		Connector: c.Connector,
		Op:        req.Op,
		Endpoint:  safeURL(endpoint),
		IDs:       req.IDs,
		Err:       err,
	}
}

func extractAPIErrorMessage(body []byte) string {
	var payload struct {
		Errors  json.RawMessage `json:"errors"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := firstErrorsEntry(payload.Errors); msg != "" {
			return capMessage(msg)
		}
		if msg := strings.TrimSpace(payload.Error); msg != "" {
			return capMessage(msg)
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return capMessage(msg)
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return ""
	}
	if strings.HasPrefix(msg, "<!DOCTYPE html") || strings.HasPrefix(msg, "<html") {
		return ""
	}
	return capMessage(msg)
}

// firstErrorsEntry handles both ["text"] and JSON:API [{"title","detail"}] error arrays.
func firstErrorsEntry(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var texts []string
	if err := json.Unmarshal(raw, &texts); err == nil {
		for _, t := range texts {
			if t = strings.TrimSpace(t); t != "" {
				return t
			}
		}
		return ""
	}
	var objects []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &objects); err == nil {
		for _, o := range objects {
			if d := strings.TrimSpace(o.Detail); d != "" {
				return d
			}
			if t := strings.TrimSpace(o.Title); t != "" {
				return t
			}
		}
	}
	return ""
}

func capMessage(msg string) string {
	msg = normalize.Collapse(msg)
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "…"
	}
	return msg
}

func formatAPIErrorDetails(reqURL string, resp *http.Response) string {
	var parts []string
	if v := safeURL(reqURL); v != "" {
		parts = append(parts, "url="+v)
	}
	if v := headerAny(resp.Header, "x-request-id", "x-correlation-id"); v != "" {
		parts = append(parts, "request_id="+v)
	}
	return strings.Join(parts, ", ")
}

func headerAny(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(h.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// safeURL drops userinfo and fragments before a URL lands in an error or log line.
func safeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.RawQuery != "" {
		return u.Scheme + "://" + u.Host + u.EscapedPath() + "?" + u.RawQuery
	}
	return u.Scheme + "://" + u.Host + u.EscapedPath()
}
