package errors

import "fmt"

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound     ErrCode = "NOT_FOUND"
	ErrCodeBadRequest   ErrCode = "BAD_REQUEST"
	ErrCodeExecution    ErrCode = "EXECUTION_ERROR"
	ErrCodeRegistration ErrCode = "REGISTRATION_ERROR"
	ErrCodeShutdown     ErrCode = "SHUTDOWN"
	ErrCodeInternal     ErrCode = "INTERNAL_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// NewRegistrationError creates a new registration error for a report that was
// generated but could not be recorded in the catalog store
func NewRegistrationError(path string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeRegistration,
		Message: fmt.Sprintf("failed to register report %s", path),
		Err:     err,
	}
}

// NewShutdownError creates an error delivered to waiters whose job was still
// pending when the queue shut down
func NewShutdownError() *AppError {
	return &AppError{
		Code:    ErrCodeShutdown,
		Message: "queue is shutting down",
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// IsBadRequest checks if the error is a bad request error
func IsBadRequest(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrCodeBadRequest
	}
	return false
}

// IsShutdown checks if the error is a shutdown error
func IsShutdown(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrCodeShutdown
	}
	return false
}
