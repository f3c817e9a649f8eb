package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allCodes = []domain.ResponseCode{
	domain.CodeSuccess,
	domain.CodePartialSuccess,
	domain.CodeInvalidCredentials,
	domain.CodeInsufficientBalance,
	domain.CodeTemplateRequired,
	domain.CodeInvalidRecipient,
	domain.CodeServerError,
	domain.CodeUnsupportedOperation,
	domain.CodeUnknown,
}

func TestResponseCode(t *testing.T) {
	t.Run("only success codes are successful", func(t *testing.T) {
		for _, c := range allCodes {
			want := c == domain.CodeSuccess || c == domain.CodePartialSuccess
			assert.Equal(t, want, c.IsSuccess(), c.String())
			assert.Equal(t, !want, c.IsError(), c.String())
			assert.NotEmpty(t, c.Description())
		}
	})

	t.Run("from vendor", func(t *testing.T) {
		assert.Equal(t, domain.CodeSuccess, domain.ResponseCodeFromVendor(100))
		assert.Equal(t, domain.CodeInsufficientBalance, domain.ResponseCodeFromVendor(402))
		assert.Equal(t, domain.CodeUnknown, domain.ResponseCodeFromVendor(12345))
	})

	t.Run("names", func(t *testing.T) {
		assert.Equal(t, "PARTIAL_SUCCESS", domain.CodePartialSuccess.String())
		assert.Equal(t, "TEMPLATE_REQUIRED", domain.CodeTemplateRequired.String())
		assert.Equal(t, "UNKNOWN", domain.ResponseCode(7).String())
	})
}

func TestResponse_SuccessDerivedFromCode(t *testing.T) {
	for _, c := range allCodes {
		r := domain.NewResponse(c, "m", "", nil)
		assert.Equal(t, c.IsSuccess(), r.Success(), c.String())
		assert.Equal(t, !r.Success(), r.Failed())
	}
}

func TestResponseFromAPI(t *testing.T) {
	tests := []struct {
		name       string
		payload    map[string]any
		code       domain.ResponseCode
		success    bool
		message    string
		resourceID string
	}{
		{
			name:       "success with resource id",
			payload:    map[string]any{"code": json.Number("100"), "message": "OK", "resourceId": "msg_123"},
			code:       domain.CodeSuccess,
			success:    true,
			message:    "OK",
			resourceID: "msg_123",
		},
		{
			name:    "insufficient balance",
			payload: map[string]any{"code": float64(402), "message": "Solde insuffisant"},
			code:    domain.CodeInsufficientBalance,
			message: "Solde insuffisant",
		},
		{
			name:    "unrecognized code",
			payload: map[string]any{"code": json.Number("777")},
			code:    domain.CodeUnknown,
			message: "Unknown error",
		},
		{
			name:    "missing code",
			payload: map[string]any{"message": "weird"},
			code:    domain.CodeUnknown,
			message: "weird",
		},
		{
			name:    "string code",
			payload: map[string]any{"code": "101"},
			code:    domain.CodePartialSuccess,
			success: true,
			message: "Unknown error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := domain.ResponseFromAPI(tt.payload)

			assert.Equal(t, tt.code, r.Code())
			assert.Equal(t, tt.success, r.Success())
			assert.Equal(t, tt.code.IsSuccess(), r.Success())
			assert.Equal(t, tt.message, r.Message())
			assert.Equal(t, tt.resourceID, r.ResourceID())
		})
	}
}

func TestResponse_Immutable(t *testing.T) {
	data := map[string]any{"sid": "SM1"}
	r := domain.SuccessResponse("sent", "SM1", data)

	data["sid"] = "mutated"
	got := r.Data()
	got["sid"] = "mutated again"

	assert.Equal(t, "SM1", r.Data()["sid"])
}

func TestResponse_MarshalJSON(t *testing.T) {
	r := domain.ErrorResponse(domain.CodeTemplateRequired, "window closed", map[string]any{"error_code": 63016})

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"success": false,
		"code": 412,
		"status": "TEMPLATE_REQUIRED",
		"message": "window closed",
		"data": {"error_code": 63016}
	}`, string(raw))
}

func TestBalanceInfoFromMap(t *testing.T) {
	tests := []struct {
		name  string
		entry map[string]any
		want  domain.BalanceInfo
	}{
		{"countryName and balance", map[string]any{"countryName": "Togo", "balance": json.Number("1500")}, domain.BalanceInfo{Country: "Togo", Balance: 1500}},
		{"country and solde", map[string]any{"country": "Benin", "solde": "42.9"}, domain.BalanceInfo{Country: "Benin", Balance: 42}},
		{"fractional floored", map[string]any{"country": "X", "balance": 12.99}, domain.BalanceInfo{Country: "X", Balance: 12}},
		{"defaults", map[string]any{}, domain.BalanceInfo{Country: "Unknown", Balance: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.BalanceInfoFromMap(tt.entry))
		})
	}
}

func TestBalanceInfo_HasCredit(t *testing.T) {
	assert.True(t, domain.BalanceInfo{Balance: 1}.HasCredit())
	assert.False(t, domain.BalanceInfo{Balance: 0}.HasCredit())
}
