package borrowbook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/borrowbook/borrowbook/internal/serviceerr"
)

var (
	ErrEmptyQuery      = errors.New("search title must not be empty")
	ErrInvalidLocation = errors.New("location must be between 3 and 128 characters")
	ErrMissingMeeting  = errors.New("meeting time is required")
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx answer of the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	code := e.Code
	if code == "" {
		code = http.StatusText(e.Status)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s (%d)", code, e.Status)
	}

	return fmt.Sprintf("%s (%d): %s", code, e.Status, e.Message)
}

// Unwrap exposes the matching serviceerr sentinel, so callers can test with
// errors.Is(err, serviceerr.ErrNotFound).
func (e *APIError) Unwrap() error {
	if e.Code != "" {
		return &serviceerr.Error{Err: serviceerr.Code(e.Code)}
	}

	switch {
	case e.Status == http.StatusBadRequest:
		return serviceerr.ErrInvalidRequest
	case e.Status == http.StatusUnauthorized:
		return serviceerr.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return serviceerr.ErrAccessDenied
	case e.Status == http.StatusNotFound:
		return serviceerr.ErrNotFound
	case e.Status == http.StatusConflict:
		return serviceerr.ErrConflict
	case e.Status >= 500:
		return serviceerr.ErrServerError
	}

	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}
	if len(data) == 0 {
		return apiErr
	}

	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}

	apiErr.Code = payload.Error
	apiErr.Message = payload.ErrorDescription
	if apiErr.Message == "" {
		apiErr.Message = payload.Message
	}

	return apiErr
}
