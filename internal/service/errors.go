package service

import "errors"

type ErrorCode string

const (
	ErrorCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrorCodeEmailExists    ErrorCode = "EMAIL_EXISTS"
	ErrorCodeForbidden      ErrorCode = "FORBIDDEN"
	ErrorCodeConflict       ErrorCode = "CONFLICT"
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeUnspecified    ErrorCode = "UNSPECIFIED"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}

// asError extracts the *Error carried by err. Any other failure, such as a
// failed commit, is reported as UNSPECIFIED with msg.
func asError(err error, msg string) *Error {
	if err == nil {
		return nil
	}

	var res *Error
	if errors.As(err, &res) {
		return res
	}
	return NewError(ErrorCodeUnspecified, msg)
}
