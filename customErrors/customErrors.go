package customErrors

import (
	"errors"
	"fmt"
)

const (
	ErrNotFound     = "NOT FOUND"
	ErrInvalidInput = "INVALID INPUT"
	ErrAuth         = "UNAUTHORIZED"
	ErrAccessDenied = "ACCESS DENIED"
	ErrConflict     = "CONFLICT"
	ErrInternal     = "INTERNAL"
)

// ErrorResponse is the error value every layer hands up to the API.
// Err keeps the underlying cause for errors.Is and errors.As and is never
// serialized.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e ErrorResponse) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %s, message: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
}

func (e ErrorResponse) Unwrap() error {
	return e.Err
}

func New(code, message string) ErrorResponse {
	return ErrorResponse{Code: code, Message: message}
}

func Wrap(code, message string, err error) ErrorResponse {
	return ErrorResponse{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first ErrorResponse in err's chain,
// or ErrInternal when there is none.
func CodeOf(err error) string {
	var resp ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code
	}
	return ErrInternal
}

// MessageOf returns the client facing message of err.
func MessageOf(err error) string {
	var resp ErrorResponse
	if errors.As(err, &resp) {
		return resp.Message
	}
	return "Internal server error, try again later."
}

func IsCode(err error, code string) bool {
	var resp ErrorResponse
	return errors.As(err, &resp) && resp.Code == code
}
