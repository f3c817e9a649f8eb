package domain

import (
	"encoding/json"
	"maps"
	"math"
	"strconv"
	"strings"
)

// ResponseCode is the vendor-agnostic result taxonomy. Values match the
// numeric codes returned by the SMS vendor so replies map without a table.
type ResponseCode int

const (
	CodeSuccess              ResponseCode = 100
	CodePartialSuccess       ResponseCode = 101
	CodeInvalidCredentials   ResponseCode = 401
	CodeInsufficientBalance  ResponseCode = 402
	CodeTemplateRequired     ResponseCode = 412
	CodeInvalidRecipient     ResponseCode = 422
	CodeServerError          ResponseCode = 500
	CodeUnsupportedOperation ResponseCode = 501
	CodeUnknown              ResponseCode = 999
)

var codeNames = map[ResponseCode]string{
	CodeSuccess:              "SUCCESS",
	CodePartialSuccess:       "PARTIAL_SUCCESS",
	CodeInvalidCredentials:   "INVALID_CREDENTIALS",
	CodeInsufficientBalance:  "INSUFFICIENT_BALANCE",
	CodeTemplateRequired:     "TEMPLATE_REQUIRED",
	CodeInvalidRecipient:     "INVALID_RECIPIENT",
	CodeServerError:          "SERVER_ERROR",
	CodeUnsupportedOperation: "UNSUPPORTED_OPERATION",
	CodeUnknown:              "UNKNOWN",
}

var codeDescriptions = map[ResponseCode]string{
	CodeSuccess:              "Operation completed successfully",
	CodePartialSuccess:       "Operation partially completed",
	CodeInvalidCredentials:   "Invalid API credentials",
	CodeInsufficientBalance:  "Insufficient balance or quota exceeded",
	CodeTemplateRequired:     "A pre-approved template is required outside the messaging window",
	CodeInvalidRecipient:     "Invalid recipient phone number",
	CodeServerError:          "Server error occurred",
	CodeUnsupportedOperation: "Operation not supported by this gateway",
	CodeUnknown:              "Unknown error occurred",
}

// ResponseCodeFromVendor maps a raw numeric code; anything unrecognized is CodeUnknown.
func ResponseCodeFromVendor(raw int) ResponseCode {
	c := ResponseCode(raw)
	if _, ok := codeNames[c]; ok {
		return c
	}
	return CodeUnknown
}

func (c ResponseCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// Description returns the fixed human description of the code.
func (c ResponseCode) Description() string {
	if d, ok := codeDescriptions[c]; ok {
		return d
	}
	return codeDescriptions[CodeUnknown]
}

// IsSuccess is true only for CodeSuccess and CodePartialSuccess.
func (c ResponseCode) IsSuccess() bool {
	return c == CodeSuccess || c == CodePartialSuccess
}

// IsError is the complement of IsSuccess.
func (c ResponseCode) IsError() bool {
	return !c.IsSuccess()
}

// Response is the immutable result envelope returned by every gateway
// operation. Success is always derived from the code.
type Response struct {
	code       ResponseCode
	message    string
	resourceID string
	data       map[string]any
}

// NewResponse builds a Response. data is copied.
func NewResponse(code ResponseCode, message, resourceID string, data map[string]any) Response {
	return Response{
		code:       code,
		message:    message,
		resourceID: resourceID,
		data:       maps.Clone(data),
	}
}

// SuccessResponse builds a CodeSuccess response.
func SuccessResponse(message, resourceID string, data map[string]any) Response {
	return NewResponse(CodeSuccess, message, resourceID, data)
}

// ErrorResponse builds a response for a failure code.
func ErrorResponse(code ResponseCode, message string, data map[string]any) Response {
	return NewResponse(code, message, "", data)
}

// ResponseFromAPI builds a Response from a decoded vendor JSON reply. A
// missing or unrecognized "code" maps to CodeUnknown, a missing "message" to
// "Unknown error". The whole payload is kept as data.
func ResponseFromAPI(payload map[string]any) Response {
	code := CodeUnknown
	if raw, ok := intValue(payload["code"]); ok {
		code = ResponseCodeFromVendor(raw)
	}
	message, _ := payload["message"].(string)
	if message == "" {
		message = "Unknown error"
	}
	var resourceID string
	switch v := payload["resourceId"].(type) {
	case string:
		resourceID = v
	case json.Number:
		resourceID = v.String()
	case float64:
		resourceID = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return NewResponse(code, message, resourceID, payload)
}

func (r Response) Success() bool      { return r.code.IsSuccess() }
func (r Response) Failed() bool       { return !r.Success() }
func (r Response) Code() ResponseCode { return r.code }
func (r Response) Message() string    { return r.message }
func (r Response) ResourceID() string { return r.resourceID }

// Data returns a copy of the response payload.
func (r Response) Data() map[string]any {
	if r.data == nil {
		return map[string]any{}
	}
	return maps.Clone(r.data)
}

type responseJSON struct {
	Success    bool           `json:"success"`
	Code       int            `json:"code"`
	Status     string         `json:"status"`
	Message    string         `json:"message"`
	ResourceID string         `json:"resource_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// MarshalJSON renders the response for outer surfaces.
func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(responseJSON{
		Success:    r.Success(),
		Code:       int(r.code),
		Status:     r.code.String(),
		Message:    r.message,
		ResourceID: r.resourceID,
		Data:       r.data,
	})
}

// BalanceInfo is one per-country balance entry.
type BalanceInfo struct {
	Country string `json:"country"`
	Balance int    `json:"balance"`
}

// BalanceInfoFromMap reads a vendor balance entry. Country comes from
// "countryName" or "country", balance from "balance" or "solde", floored.
func BalanceInfoFromMap(entry map[string]any) BalanceInfo {
	country, _ := entry["countryName"].(string)
	if country == "" {
		country, _ = entry["country"].(string)
	}
	if country == "" {
		country = "Unknown"
	}
	balance, ok := floorValue(entry["balance"])
	if !ok {
		balance, _ = floorValue(entry["solde"])
	}
	return BalanceInfo{Country: country, Balance: balance}
}

// HasCredit reports a strictly positive balance.
func (b BalanceInfo) HasCredit() bool {
	return b.Balance > 0
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func floorValue(v any) (int, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(math.Floor(n)), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int(math.Floor(f)), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return int(math.Floor(f)), true
	}
	return 0, false
}
