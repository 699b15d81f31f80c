package restclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ErrAPI matches any non-2xx vendor response.
var ErrAPI = errors.New("vendor api error")

// APIError is a non-2xx response from a vendor API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	status := strings.TrimSpace(e.Status)
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	msg := "api failed: " + status
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return ErrAPI
}

// DecodeError reports a response body that does not have the expected shape.
type DecodeError struct {
	Endpoint string
	Field    string
	Err      error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	prefix := "decode response"
	if e.Endpoint != "" {
		prefix += " from " + e.Endpoint
	}
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: %s missing", prefix, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return prefix
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MissingField builds the error for a required JSON path that is absent or null.
func MissingField(path string) error {
	return &DecodeError{Field: path}
}

// OpError names the vendor operation and identifiers behind a failed round trip.
type OpError struct {
	Connector string
	Op        string
	Endpoint  string
	IDs       []any
	Err       error
}

func (e *OpError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Connector)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	for i := 0; i+1 < len(e.IDs); i += 2 {
		fmt.Fprintf(&b, " %v=%v", e.IDs[i], e.IDs[i+1])
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusCode returns the HTTP status behind err, or 0 when err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsFatal reports whether err should abort a whole vendor pass rather than skip one item:
// cancellation, transport failures and rejected credentials.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
