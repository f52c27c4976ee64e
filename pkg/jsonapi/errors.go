package jsonapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// NewError creates an error object.
func NewError(status int, code, title, detail string) Error {
	return Error{Status: strconv.Itoa(status), Code: code, Title: title, Detail: detail}
}

// StatusCode returns the HTTP status as an int.
func (e Error) StatusCode() int {
	code, _ := strconv.Atoi(e.Status)
	return code
}

// ErrBadRequest is a 400 for a malformed request.
func ErrBadRequest(detail string) Error {
	return NewError(http.StatusBadRequest, "bad_request", "Bad Request", detail)
}

// ErrBadParameter is a 400 naming the query parameter at fault.
func ErrBadParameter(param, detail string) Error {
	e := ErrBadRequest(detail)
	e.Source = &ErrorSource{Parameter: param}
	return e
}

// ErrUnauthorized is a 401.
func ErrUnauthorized(detail string) Error {
	if detail == "" {
		detail = "Authentication required"
	}
	return NewError(http.StatusUnauthorized, "unauthorized", "Unauthorized", detail)
}

// ErrNotFound is a 404 for a resource kind.
func ErrNotFound(kind string) Error {
	return NewError(http.StatusNotFound, "not_found", "Not Found", fmt.Sprintf("The requested %s was not found", kind))
}

// ErrMethodNotAllowed is a 405 listing the allowed methods.
func ErrMethodNotAllowed(method string, allowed []string) Error {
	e := NewError(http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed",
		fmt.Sprintf("The %s method is not allowed for this resource", method))
	if len(allowed) > 0 {
		e.Meta = Meta{"allowed": strings.Join(allowed, ", ")}
	}
	return e
}

// ErrConflict is a 409.
func ErrConflict(code, detail string) Error {
	if code == "" {
		code = "conflict"
	}
	return NewError(http.StatusConflict, code, "Conflict", detail)
}

// ErrValidation is a 422 for one attribute. rejected is echoed back in meta
// when non-nil.
func ErrValidation(field, message string, rejected any) Error {
	e := NewError(http.StatusUnprocessableEntity, "validation_error", "Validation Failed", message)
	e.Source = &ErrorSource{Pointer: "/data/attributes/" + escapePointer(field)}
	if rejected != nil {
		e.Meta = Meta{"rejectedValue": rejected}
	}
	return e
}

// ErrUnprocessable is a 422 not tied to one attribute.
func ErrUnprocessable(code, detail string) Error {
	return NewError(http.StatusUnprocessableEntity, code, "Unprocessable Entity", detail)
}

// ErrInternal is a 500. The detail is fixed so storage internals never
// reach the client.
func ErrInternal() Error {
	return NewError(http.StatusInternalServerError, "internal_error", "Internal Server Error", "An internal error occurred")
}

// ErrServiceUnavailable is a 503.
func ErrServiceUnavailable(detail string) Error {
	if detail == "" {
		detail = "Service temporarily unavailable"
	}
	return NewError(http.StatusServiceUnavailable, "service_unavailable", "Service Unavailable", detail)
}

// escapePointer escapes a JSON pointer reference token (RFC 6901).
func escapePointer(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}
