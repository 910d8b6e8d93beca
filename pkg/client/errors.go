package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrorKind classifies API failures.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation" // 400, 422
	KindAuth       ErrorKind = "auth"       // 401
	KindPermission ErrorKind = "permission" // 403
	KindNotFound   ErrorKind = "not_found"  // 404
	KindServer     ErrorKind = "server"     // everything else
)

// Sentinel errors matched by APIError.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// APIError represents an error response from the customs data API.
type APIError struct {
	StatusCode int
	Kind       ErrorKind
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("customs API error %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is match the sentinel for this error's kind.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindAuth
	case ErrForbidden:
		return e.Kind == KindPermission
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// NetworkError is a transport-level failure: no HTTP response was received.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// kindForStatus maps an HTTP status to an ErrorKind.
func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindPermission
	case http.StatusNotFound:
		return KindNotFound
	default:
		return KindServer
	}
}

// errorResponse is the JSON structure for API errors. Detail is either a
// string or a list of {msg} objects.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type detailItem struct {
	Msg string `json:"msg"`
}

// parseError extracts an APIError from an error response.
func parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)
	return &APIError{
		StatusCode: resp.StatusCode,
		Kind:       kindForStatus(resp.StatusCode),
		Message:    errorMessage(body),
	}
}

// errorMessage normalizes the server's error body into one line.
func errorMessage(body []byte) string {
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil && len(errResp.Detail) > 0 {
		var s string
		if json.Unmarshal(errResp.Detail, &s) == nil {
			return s
		}
		var items []detailItem
		if json.Unmarshal(errResp.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				msgs = append(msgs, it.Msg)
			}
			return strings.Join(msgs, "; ")
		}
	}
	return strings.TrimSpace(string(body))
}

// DecodeError reports a 2xx response whose body is not the expected JSON.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response from %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
