package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable codes surfaced to the reader UI. The four denial codes are
// terminal for the client: none of them clears up on retry without a fresh
// token from support.
const (
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeSharingDetected   = "SHARING_DETECTED"
	CodeConcurrentSession = "CONCURRENT_SESSION"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeMissingField      = "MISSING_FIELD"
	CodeWrongProductType  = "WRONG_PRODUCT_TYPE"
	CodeContentNotFound   = "CONTENT_NOT_FOUND"
	CodeServerError       = "SERVER_ERROR"
)

// AccessError is the wire shape for every non-2xx response of the e-book API.
type AccessError struct {
	Code        string `json:"code"`
	Description string `json:"error"`
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPStatus maps the error code to its response status. Access denials are
// 403 across the board; infrastructure trouble stays a distinct 5xx so client
// UIs can offer "try again later" instead of "this link is invalid".
func (e *AccessError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidRequest, CodeMissingField, CodeWrongProductType:
		return http.StatusBadRequest
	case CodeContentNotFound:
		return http.StatusNotFound
	case CodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusForbidden
	}
}

func NewInvalidToken() *AccessError {
	return &AccessError{Code: CodeInvalidToken, Description: "Invalid token"}
}

func NewTokenExpired() *AccessError {
	return &AccessError{Code: CodeTokenExpired, Description: "Token expired"}
}

func NewSharingDetected() *AccessError {
	return &AccessError{Code: CodeSharingDetected, Description: "Device mismatch - link sharing detected"}
}

func NewConcurrentSession() *AccessError {
	return &AccessError{Code: CodeConcurrentSession, Description: "Maximum concurrent sessions reached"}
}

func NewInvalidRequest() *AccessError {
	return &AccessError{Code: CodeInvalidRequest, Description: "Invalid request body"}
}

func NewMissingField(field string) *AccessError {
	return &AccessError{Code: CodeMissingField, Description: fmt.Sprintf("%s is required", field)}
}

func NewWrongProductType() *AccessError {
	return &AccessError{Code: CodeWrongProductType, Description: "This order is not for a digital product"}
}

func NewContentNotFound() *AccessError {
	return &AccessError{Code: CodeContentNotFound, Description: "E-book not found"}
}

func NewServerError(description string) *AccessError {
	return &AccessError{Code: CodeServerError, Description: description}
}

// Sentinel errors used between the repositories and the services. They are
// never serialized to clients directly; the validator translates them into
// the AccessError taxonomy above.
var (
	ErrTokenNotFound  = errors.New("reading token not found")
	ErrDuplicateToken = errors.New("reading token already exists")
)
