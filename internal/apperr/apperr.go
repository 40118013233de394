// Package apperr carries machine readable error codes from the request
// handlers to the JSON error body.
package apperr

import (
	"errors"
	"net/http"
)

const (
	CodeInvalidRequest      = "invalid_request"
	CodeEmptyCode           = "empty_code"
	CodeUnsupportedLanguage = "unsupported_language"
	CodePayloadTooLarge     = "payload_too_large"
	CodeProblemNotFound     = "problem_not_found"
	CodeTemplateNotFound    = "template_not_found"
	CodeRateLimited         = "rate_limited"
	CodeOverloaded          = "overloaded"
	CodeExecutionFailed     = "execution_failed"
	CodeInternal            = "internal_server_error"
)

type Error struct {
	code       string
	msgToUser  string // public
	dbgInfoErr error  // private, for logs
	httpStatus int
}

func New(code, msgToUser string) *Error {
	return &Error{code: code, msgToUser: msgToUser}
}

func (e *Error) Error() string {
	return e.msgToUser
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.dbgInfoErr
}

func (e *Error) DebugInfo() error {
	return e.dbgInfoErr
}

func (e *Error) WithDebug(err error) *Error {
	e.dbgInfoErr = err
	return e
}

func (e *Error) HTTPStatus() int {
	if e.httpStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.httpStatus
}

func (e *Error) WithStatus(status int) *Error {
	e.httpStatus = status
	return e
}

// As returns err as an *Error, wrapping anything else as an internal error.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal().WithDebug(err)
}

func InvalidRequest(msg string) *Error {
	return New(CodeInvalidRequest, msg).WithStatus(http.StatusBadRequest)
}

func EmptyCode() *Error {
	return New(CodeEmptyCode, "code must not be empty").WithStatus(http.StatusBadRequest)
}

func UnsupportedLanguage(lang string) *Error {
	return New(CodeUnsupportedLanguage, "language not supported: "+lang).WithStatus(http.StatusBadRequest)
}

func PayloadTooLarge() *Error {
	return New(CodePayloadTooLarge, "source code is too large").WithStatus(http.StatusRequestEntityTooLarge)
}

func ProblemNotFound(id string) *Error {
	return New(CodeProblemNotFound, "problem not found: "+id).WithStatus(http.StatusNotFound)
}

func TemplateNotFound() *Error {
	return New(CodeTemplateNotFound, "template not found").WithStatus(http.StatusNotFound)
}

func RateLimited() *Error {
	return New(CodeRateLimited, "too many requests").WithStatus(http.StatusTooManyRequests)
}

func Overloaded() *Error {
	return New(CodeOverloaded, "all sandboxes are busy, try again shortly").WithStatus(http.StatusServiceUnavailable)
}

func ExecutionFailed() *Error {
	return New(CodeExecutionFailed, "execution failed").WithStatus(http.StatusInternalServerError)
}

func Internal() *Error {
	return New(CodeInternal, http.StatusText(http.StatusInternalServerError)).WithStatus(http.StatusInternalServerError)
}
