package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v72/github"
)

var (
	// ErrConflict is matched by a TransportError carrying the API's
	// "already exists" status (422).
	ErrConflict = errors.New("record already exists")

	// ErrNotFound is matched by a TransportError carrying status 404.
	ErrNotFound = errors.New("record not found")
)

// TransportError is a non-success response (or a failed round trip, with
// StatusCode 0) from the remote API.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is match the status sentinels.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.StatusCode == http.StatusUnprocessableEntity
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IsConflict reports whether err is an "already exists" response.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// wrapErr converts a go-github error into a *TransportError.
func wrapErr(op string, resp *gh.Response, err error) error {
	te := &TransportError{Op: op, Err: err}
	if resp != nil && resp.Response != nil {
		te.StatusCode = resp.StatusCode
	}

	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) {
		if errResp.Response != nil {
			te.StatusCode = errResp.Response.StatusCode
		}
		te.Body = describe(errResp)
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		te.Body = rateErr.Message
		if rateErr.Response != nil {
			te.StatusCode = rateErr.Response.StatusCode
		}
	}
	return te
}

func describe(e *gh.ErrorResponse) string {
	parts := []string{}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	for _, fe := range e.Errors {
		switch {
		case fe.Message != "":
			parts = append(parts, fe.Message)
		case fe.Field != "":
			parts = append(parts, fmt.Sprintf("%s %s", fe.Field, fe.Code))
		case fe.Code != "":
			parts = append(parts, fe.Code)
		}
	}
	return strings.Join(parts, "; ")
}
