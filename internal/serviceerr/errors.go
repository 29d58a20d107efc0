// Package serviceerr holds the error codes shared by the BorrowBook
// development backend and the client bindings.
package serviceerr

import "net/http"

type Code string

const (
	CodeInvalidRequest   Code = "invalid_request"
	CodeUnauthorized     Code = "unauthorized"
	CodeAccessDenied     Code = "access_denied"
	CodeNotFound         Code = "not_found"
	CodeConflict         Code = "conflict"
	CodeInvalidCSRFToken Code = "invalid_csrf_token"
	CodeSessionExpired   Code = "session_expired"
	CodeLoginRequired    Code = "login_required"
	CodeServerError      Code = "server_error"
	CodeUnknown          Code = "unknown"
)

// Error is a coded error that maps onto an HTTP status.
type Error struct {
	Err         Code
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

// Is matches errors by code so that a decorated copy still satisfies errors.Is
// against the predefined values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Err == e.Err
}

func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeSessionExpired, CodeLoginRequired:
		return http.StatusUnauthorized
	case CodeAccessDenied, CodeInvalidCSRFToken:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WithDescription returns a copy of e carrying a request specific description.
func (e *Error) WithDescription(description string) *Error {
	return &Error{Err: e.Err, Description: description}
}

var (
	ErrInvalidRequest   = &Error{Err: CodeInvalidRequest}
	ErrUnauthorized     = &Error{Err: CodeUnauthorized, Description: "authentication required"}
	ErrAccessDenied     = &Error{Err: CodeAccessDenied}
	ErrNotFound         = &Error{Err: CodeNotFound, Description: "not found"}
	ErrConflict         = &Error{Err: CodeConflict, Description: "already exists"}
	ErrInvalidCSRFToken = &Error{Err: CodeInvalidCSRFToken, Description: "csrf token missing or invalid"}
	ErrSessionExpired   = &Error{Err: CodeSessionExpired, Description: "session expired"}
	ErrLoginRequired    = &Error{Err: CodeLoginRequired, Description: "session could not be restored, log in again"}
	ErrServerError      = &Error{Err: CodeServerError}
	ErrUnknown          = &Error{Err: CodeUnknown, Description: "unknown error"}
)
