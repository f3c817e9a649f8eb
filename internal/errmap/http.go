package errmap

import (
	"errors"
	"net/http"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e HTTPError) Error() string {
	return e.Message
}

// httpMapping defines a domain error to HTTP status/code mapping.
type httpMapping struct {
	err        error
	statusCode int
	code       string
}

// httpMappings maps domain errors to HTTP status codes and error codes.
// Order matters: first match wins (via errors.Is).
var httpMappings = []httpMapping{
	// Routing errors
	{domain.ErrUnknownChannel, http.StatusNotFound, "UNKNOWN_CHANNEL"},
	{domain.ErrUnsupportedOperation, http.StatusNotImplemented, "UNSUPPORTED_OPERATION"},
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},

	// Validation errors
	{domain.ErrInvalidRecipient, http.StatusUnprocessableEntity, "INVALID_RECIPIENT"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_ARGUMENT"},

	// Vendor errors
	{domain.ErrQuotaExceeded, http.StatusPaymentRequired, "QUOTA_EXCEEDED"},
	{domain.ErrInvalidCredentials, http.StatusBadGateway, "INVALID_CREDENTIALS"},
	{domain.ErrAPI, http.StatusBadGateway, "VENDOR_ERROR"},
	{domain.ErrSendFailed, http.StatusBadGateway, "SEND_FAILED"},

	// Availability
	{domain.ErrConfigurationMissing, http.StatusServiceUnavailable, "NOT_CONFIGURED"},
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
}

// ToHTTPError converts a domain error to an HTTP error.
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{StatusCode: http.StatusOK}
	}
	for _, m := range httpMappings {
		if errors.Is(err, m.err) {
			return HTTPError{StatusCode: m.statusCode, Code: m.code, Message: err.Error()}
		}
	}
	// Never expose internal error details to clients
	return HTTPError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal error"}
}

// ToHTTPStatusCode extracts just the HTTP status code for a domain error.
func ToHTTPStatusCode(err error) int {
	return ToHTTPError(err).StatusCode
}

// StatusForResponse picks the HTTP status for a gateway Response. Partial
// success is still a 200: the per-recipient outcome is in the body.
func StatusForResponse(resp domain.Response) int {
	switch resp.Code() {
	case domain.CodeSuccess, domain.CodePartialSuccess:
		return http.StatusOK
	case domain.CodeInvalidRecipient:
		return http.StatusUnprocessableEntity
	case domain.CodeInsufficientBalance:
		return http.StatusPaymentRequired
	case domain.CodeTemplateRequired:
		return http.StatusPreconditionFailed
	case domain.CodeUnsupportedOperation:
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}
