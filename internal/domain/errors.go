package domain

import (
	"errors"
	"fmt"
	"maps"
)

// Sentinel errors for domain error conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// Resource errors
	ErrNotFound = errors.New("resource not found")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")

	// Operational errors
	ErrUnavailable = errors.New("service temporarily unavailable")

	// Messaging errors. Each one is the Kind of an *Error built by the
	// constructors below.
	ErrSendFailed           = errors.New("message send failed")
	ErrInvalidRecipient     = errors.New("invalid recipient phone number")
	ErrConfigurationMissing = errors.New("missing messaging configuration")
	ErrAPI                  = errors.New("vendor API error")
	ErrQuotaExceeded        = errors.New("message quota exceeded")
	ErrUnsupportedOperation = errors.New("operation not supported by gateway")
	ErrInvalidCredentials   = errors.New("invalid API credentials")
	ErrUnknownChannel       = errors.New("unknown messaging channel")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// Error is the single typed error raised by gateways and the messaging core.
// Kind is one of the messaging sentinels above and is reachable through
// errors.Is. Transport is set when the failure happened at the HTTP layer
// (connectivity exhausted after retries, non-2xx status) rather than being an
// application-level rejection.
type Error struct {
	Kind      error
	Code      ResponseCode
	Message   string
	Context   map[string]any
	Transport bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// AsTransport returns a copy of e flagged as a transport failure.
func (e *Error) AsTransport() *Error {
	cp := *e
	cp.Transport = true
	return &cp
}

// SendFailed reports a send that could not be carried out.
func SendFailed(reason string, ctx map[string]any) *Error {
	return &Error{
		Kind:    ErrSendFailed,
		Code:    CodeServerError,
		Message: "Failed to send message: " + reason,
		Context: ctx,
	}
}

// InvalidRecipient reports a phone number that fails validation after formatting.
func InvalidRecipient(phone string) *Error {
	return &Error{
		Kind:    ErrInvalidRecipient,
		Code:    CodeInvalidRecipient,
		Message: "Invalid recipient phone number: " + phone,
		Context: map[string]any{"phone": phone},
	}
}

// ConfigurationMissing reports a required configuration key that is empty.
func ConfigurationMissing(key string) *Error {
	return &Error{
		Kind:    ErrConfigurationMissing,
		Code:    CodeServerError,
		Message: "Missing messaging configuration: " + key,
		Context: map[string]any{"key": key},
	}
}

// APIError reports a vendor reply carrying a non-success application code.
func APIError(code ResponseCode, message string) *Error {
	return &Error{
		Kind:    ErrAPI,
		Code:    code,
		Message: fmt.Sprintf("API error [%d]: %s", int(code), message),
		Context: map[string]any{"api_code": int(code), "api_message": message},
	}
}

// QuotaExceeded reports an exhausted vendor balance.
func QuotaExceeded() *Error {
	return &Error{
		Kind:    ErrQuotaExceeded,
		Code:    CodeInsufficientBalance,
		Message: "Message quota exceeded. Please check your balance.",
	}
}

// UnsupportedOperation reports an operation the bound gateway does not implement.
func UnsupportedOperation(operation, gateway string) *Error {
	return &Error{
		Kind:    ErrUnsupportedOperation,
		Code:    CodeUnsupportedOperation,
		Message: fmt.Sprintf("%s gateway does not support %s.", gateway, operation),
		Context: map[string]any{"operation": operation, "gateway": gateway},
	}
}

// InvalidCredentials reports credentials rejected by the vendor.
func InvalidCredentials() *Error {
	return &Error{
		Kind:    ErrInvalidCredentials,
		Code:    CodeInvalidCredentials,
		Message: "Invalid API credentials.",
	}
}

// UnknownChannel reports a channel name with no registered gateway.
func UnknownChannel(name string) *Error {
	return &Error{
		Kind:    ErrUnknownChannel,
		Code:    CodeUnknown,
		Message: "Unknown messaging channel: " + name,
		Context: map[string]any{"channel": name},
	}
}

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the ResponseCode carried by err, CodeServerError for any
// other non-nil error and CodeSuccess for nil.
func CodeOf(err error) ResponseCode {
	if err == nil {
		return CodeSuccess
	}
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return CodeServerError
}

// FailureResponse collapses err into a failed Response so outer boundaries
// handle transport failures and application rejections on one path. The
// transport flag and the error context are kept in the response data.
func FailureResponse(err error) Response {
	data := map[string]any{"transport": false}
	code := CodeServerError
	message := err.Error()
	if e, ok := AsError(err); ok {
		maps.Copy(data, e.Context)
		data["transport"] = e.Transport
		code = e.Code
		message = e.Error()
	}
	if code.IsSuccess() {
		code = CodeUnknown
	}
	return NewResponse(code, message, "", data)
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if e, ok := AsError(err); ok {
		return e.Transport
	}
	return false
}

// clientErrors enumerates all domain errors that represent client-side issues.
var clientErrors = []error{
	ErrInvalidInput,
	ErrNotFound,
	ErrInvalidRecipient,
	ErrUnsupportedOperation,
	ErrUnknownChannel,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without client-side changes.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound returns true if the error represents a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
