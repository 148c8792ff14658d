package api

import "fmt"

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError      ErrorType = "server_error"
	ErrorTypeInvalidRequest   ErrorType = "invalid_request"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeMethodNotAllowed ErrorType = "method_not_allowed"
	ErrorTypeTooManyRequests  ErrorType = "too_many_requests"
)

// APIError represents a structured API error with type, code, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for routes that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewMethodNotAllowedError creates an APIError for a known route requested
// with a method it does not serve.
func NewMethodNotAllowedError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeMethodNotAllowed,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}

// FailureMessage is the message carried by every fallback failure response.
// It never contains details of the underlying error.
const FailureMessage = "internal server error"

// Failure returns the fixed-shape body written when a request fails inside
// the pipeline.
func Failure() ErrorResponse {
	return ErrorResponse{Error: NewServerError(FailureMessage)}
}

// TransportStartError reports that a listener could not begin accepting
// traffic: the port could not be bound, certificates could not be loaded,
// or the channel transport found nothing to attach to.
type TransportStartError struct {
	Kind Kind
	Addr string
	Err  error
}

// Error implements the error interface.
func (e *TransportStartError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("starting %s transport on %s: %v", e.Kind, e.Addr, e.Err)
	}
	return fmt.Sprintf("starting %s transport: %v", e.Kind, e.Err)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e *TransportStartError) Unwrap() error {
	return e.Err
}
