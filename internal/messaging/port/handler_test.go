package port

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/domain/domaintest"
	"github.com/aelexs/messaging-gateway/internal/messaging/adapter"
	"github.com/aelexs/messaging-gateway/internal/messaging/app"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---------------------------------------------------------------------------
// Stubs — gateways with function fields. A nil field succeeds.
// ---------------------------------------------------------------------------

type stubGateway struct {
	name string

	mu   sync.Mutex
	sent []domain.SmsMessage

	sendFn         func(ctx context.Context, msg domain.SmsMessage) (domain.Response, error)
	balanceFn      func(ctx context.Context) ([]domain.BalanceInfo, error)
	bulkFn         func(ctx context.Context, msg domain.BulkMessage) (domain.Response, error)
	personalizedFn func(ctx context.Context, msgs []domain.PersonalizedMessage, senderID string) (domain.Response, error)
}

func (s *stubGateway) Name() string { return s.name }

func (s *stubGateway) Send(ctx context.Context, msg domain.SmsMessage) (domain.Response, error) {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	if s.sendFn != nil {
		return s.sendFn(ctx, msg)
	}
	return domain.SuccessResponse("sent", "res-1", nil), nil
}

func (s *stubGateway) lastSent() domain.SmsMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return domain.SmsMessage{}
	}
	return s.sent[len(s.sent)-1]
}

func (s *stubGateway) GetBalance(ctx context.Context) ([]domain.BalanceInfo, error) {
	if s.balanceFn != nil {
		return s.balanceFn(ctx)
	}
	return nil, nil
}

func (s *stubGateway) SendBulk(ctx context.Context, msg domain.BulkMessage) (domain.Response, error) {
	if s.bulkFn != nil {
		return s.bulkFn(ctx, msg)
	}
	return domain.SuccessResponse("bulk", "bulk-1", nil), nil
}

func (s *stubGateway) SendPersonalized(ctx context.Context, msgs []domain.PersonalizedMessage, senderID string) (domain.Response, error) {
	if s.personalizedFn != nil {
		return s.personalizedFn(ctx, msgs, senderID)
	}
	return domain.SuccessResponse("personalized", "p-1", nil), nil
}

type stubSMS struct {
	*stubGateway
	emailFn    func(ctx context.Context, msg domain.SmsMessage, email, subject string) (domain.Response, error)
	callbackFn func(ctx context.Context, url, method string) (domain.Response, error)
}

func (s *stubSMS) SendWithEmail(ctx context.Context, msg domain.SmsMessage, email, subject string) (domain.Response, error) {
	if s.emailFn != nil {
		return s.emailFn(ctx, msg, email, subject)
	}
	return domain.SuccessResponse("sent with email", "e-1", nil), nil
}

func (s *stubSMS) ConfigureCallback(ctx context.Context, url, method string) (domain.Response, error) {
	if s.callbackFn != nil {
		return s.callbackFn(ctx, url, method)
	}
	return domain.SuccessResponse("callback set", "", nil), nil
}

type stubWhatsApp struct {
	*stubGateway
	templateFn func(ctx context.Context, recipient, contentSID string, vars map[string]string) (domain.Response, error)
	mediaFn    func(ctx context.Context, recipient, mediaURL, caption string) (domain.Response, error)
}

func (s *stubWhatsApp) SendTemplate(ctx context.Context, recipient, contentSID string, vars map[string]string) (domain.Response, error) {
	if s.templateFn != nil {
		return s.templateFn(ctx, recipient, contentSID, vars)
	}
	return domain.SuccessResponse("template sent", "SM-t", nil), nil
}

func (s *stubWhatsApp) SendMedia(ctx context.Context, recipient, mediaURL, caption string) (domain.Response, error) {
	if s.mediaFn != nil {
		return s.mediaFn(ctx, recipient, mediaURL, caption)
	}
	return domain.SuccessResponse("media sent", "SM-m", nil), nil
}

var (
	_ app.SMSGateway      = (*stubSMS)(nil)
	_ app.WhatsAppGateway = (*stubWhatsApp)(nil)
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var fixedTime = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

const testPhone = "22890123456"

type fixture struct {
	sms   *stubSMS
	wa    *stubWhatsApp
	clock *domaintest.FakeClock
	mux   *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sms:   &stubSMS{stubGateway: &stubGateway{name: "afriksms"}},
		wa:    &stubWhatsApp{stubGateway: &stubGateway{name: "twilio"}},
		clock: domaintest.NewFakeClock(fixedTime),
		mux:   http.NewServeMux(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	messaging := app.NewMessaging(app.MessagingConfig{
		Factories: map[string]app.GatewayFactory{
			"sms":      func() (app.Gateway, error) { return f.sms, nil },
			"whatsapp": func() (app.Gateway, error) { return f.wa, nil },
		},
		DefaultChannel: "sms",
		Logger:         logger,
	})
	otp := app.NewOTPManager(app.OTPManagerConfig{
		Resolver:    messaging,
		Store:       adapter.NewMemoryOTPStore(f.clock),
		Length:      6,
		Expiry:      10 * time.Minute,
		MaxAttempts: 3,
		Message:     domain.DefaultOTPMessage,
		Generator:   domaintest.FixedCode("482913"),
		Clock:       f.clock,
		Logger:      logger,
	})

	NewHandler(HandlerConfig{
		Messaging: messaging,
		OTP:       otp,
		Clock:     f.clock,
		Logger:    logger,
	}).Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func responseData(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data: %v", body)
	return data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	code, _ := errObj["code"].(string)
	return code
}

// ---------------------------------------------------------------------------
// Tests — messages
// ---------------------------------------------------------------------------

func TestHandler_SendMessage(t *testing.T) {
	t.Run("plain send on default channel", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/v1/messages", map[string]any{
			"to": testPhone, "content": "hello", "sender_id": "Shop",
		})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "SUCCESS", body["status"])
		assert.Equal(t, "res-1", body["resource_id"])
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		assert.Equal(t, domain.SmsMessage{Recipient: testPhone, Content: "hello", SenderID: "Shop"}, f.sms.lastSent())
	})

	t.Run("request id is echoed", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"to":"`+testPhone+`","content":"x"}`))
		req.Header.Set("X-Request-ID", "req-42")
		rec := httptest.NewRecorder()

		f.mux.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	})

	t.Run("template on whatsapp", func(t *testing.T) {
		f := newFixture(t)
		var gotVars map[string]string
		f.wa.templateFn = func(_ context.Context, recipient, contentSID string, vars map[string]string) (domain.Response, error) {
			assert.Equal(t, testPhone, recipient)
			assert.Equal(t, "HX123", contentSID)
			gotVars = vars
			return domain.SuccessResponse("ok", "SM1", nil), nil
		}

		rec := f.do(t, http.MethodPost, "/v1/messages", map[string]any{
			"channel": "whatsapp", "to": testPhone, "template_sid": "HX123",
			"variables": map[string]string{"1": "Ada"},
		})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, map[string]string{"1": "Ada"}, gotVars)
	})

	t.Run("media through vendor alias", func(t *testing.T) {
		f := newFixture(t)
		called := false
		f.wa.mediaFn = func(_ context.Context, _, mediaURL, caption string) (domain.Response, error) {
			called = true
			assert.Equal(t, "https://cdn.example.com/a.png", mediaURL)
			assert.Equal(t, "look", caption)
			return domain.SuccessResponse("ok", "SM2", nil), nil
		}

		rec := f.do(t, http.MethodPost, "/v1/messages", map[string]any{
			"channel": "twilio", "to": testPhone, "media_url": "https://cdn.example.com/a.png", "caption": "look",
		})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, called)
	})

	t.Run("email copy", func(t *testing.T) {
		f := newFixture(t)
		f.sms.emailFn = func(_ context.Context, msg domain.SmsMessage, email, subject string) (domain.Response, error) {
			assert.Equal(t, "hi", msg.Content)
			assert.Equal(t, "ada@example.com", email)
			assert.Equal(t, "Receipt", subject)
			return domain.SuccessResponse("ok", "e", nil), nil
		}

		rec := f.do(t, http.MethodPost, "/v1/messages", map[string]any{
			"to": testPhone, "content": "hi", "email": "ada@example.com", "subject": "Receipt",
		})

		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("template on sms is unsupported", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/v1/messages", map[string]any{
			"to": testPhone, "template_sid": "HX1",
		})

		assert.Equal(t, http.StatusNotImplemented, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "UNSUPPORTED_OPERATION", body["status"])
		assert.Equal(t, "afriksms", responseData(t, body)["gateway"])
	})

	t.Run("rejected response keeps vendor body", func(t *testing.T) {
		f := newFixture(t)
		f.sms.sendFn = func(context.Context, domain.SmsMessage) (domain.Response, error) {
			return domain.ErrorResponse(domain.CodeInsufficientBalance, "no credit", nil), nil
		}

		rec := f.do(t, http.MethodPost, "/v1/messages", map[string]any{"to": testPhone, "content": "x"})

		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "INSUFFICIENT_BALANCE", body["status"])
		assert.Equal(t, "no credit", body["message"])
	})

	t.Run("transport failure", func(t *testing.T) {
		f := newFixture(t)
		f.sms.sendFn = func(context.Context, domain.SmsMessage) (domain.Response, error) {
			return domain.Response{}, domain.SendFailed("HTTP 503", nil).AsTransport()
		}

		rec := f.do(t, http.MethodPost, "/v1/messages", map[string]any{"to": testPhone, "content": "x"})

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "SERVER_ERROR", body["status"])
		assert.Equal(t, "Failed to send message: HTTP 503", body["message"])
		assert.Equal(t, true, responseData(t, body)["transport"])
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name     string
			body     any
			wantCode int
			wantErr  string
		}{
			{"missing to", map[string]any{"content": "x"}, http.StatusBadRequest, "INVALID_ARGUMENT"},
			{"missing content", map[string]any{"to": testPhone}, http.StatusBadRequest, "INVALID_ARGUMENT"},
			{"malformed json", `{"to":`, http.StatusBadRequest, "INVALID_ARGUMENT"},
			{"unknown field", `{"to":"1","content":"x","priority":1}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
			{"empty body", "", http.StatusBadRequest, "INVALID_ARGUMENT"},
			{"unknown channel", map[string]any{"channel": "fax", "to": testPhone, "content": "x"}, http.StatusNotFound, "UNKNOWN_CHANNEL"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)

				rec := f.do(t, http.MethodPost, "/v1/messages", tt.body)

				assert.Equal(t, tt.wantCode, rec.Code)
				assert.Equal(t, tt.wantErr, errorCode(t, rec))
			})
		}
	})
}

func TestHandler_SendBulk(t *testing.T) {
	t.Run("same content", func(t *testing.T) {
		f := newFixture(t)
		f.sms.bulkFn = func(_ context.Context, msg domain.BulkMessage) (domain.Response, error) {
			assert.Equal(t, []string{"22890000001", "22890000002"}, msg.Recipients)
			assert.Equal(t, "promo", msg.Content)
			return domain.SuccessResponse("ok", "b1", nil), nil
		}

		rec := f.do(t, http.MethodPost, "/v1/messages/bulk", map[string]any{
			"to": []string{"22890000001", "22890000002"}, "content": "promo",
		})

		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("personalized takes precedence", func(t *testing.T) {
		f := newFixture(t)
		f.sms.bulkFn = func(context.Context, domain.BulkMessage) (domain.Response, error) {
			t.Fatal("bulk must not be called")
			return domain.Response{}, nil
		}
		f.sms.personalizedFn = func(_ context.Context, msgs []domain.PersonalizedMessage, senderID string) (domain.Response, error) {
			require.Len(t, msgs, 2)
			assert.Equal(t, "Hi Ada", msgs[0].Content)
			assert.Equal(t, "Shop", senderID)
			return domain.NewResponse(domain.CodePartialSuccess, "partial", "", nil), nil
		}

		rec := f.do(t, http.MethodPost, "/v1/messages/bulk", map[string]any{
			"to":        []string{"ignored"},
			"sender_id": "Shop",
			"messages": []map[string]string{
				{"recipient": "22890000001", "content": "Hi Ada"},
				{"recipient": "22890000002", "content": "Hi Bo"},
			},
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "PARTIAL_SUCCESS", decodeBody(t, rec)["status"])
	})

	t.Run("no recipients", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/v1/messages/bulk", map[string]any{"content": "x"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("over the cap", func(t *testing.T) {
		f := newFixture(t)
		f.sms.bulkFn = func(_ context.Context, msg domain.BulkMessage) (domain.Response, error) {
			return domain.Response{}, domain.SendFailed("Maximum 500 recipients allowed per bulk request", map[string]any{"count": msg.Count()})
		}
		to := make([]string, domain.MaxBulkRecipients+1)
		for i := range to {
			to[i] = testPhone
		}

		rec := f.do(t, http.MethodPost, "/v1/messages/bulk", map[string]any{"to": to, "content": "x"})

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "SERVER_ERROR", body["status"])
		data := responseData(t, body)
		assert.Equal(t, false, data["transport"])
		assert.InDelta(t, float64(domain.MaxBulkRecipients+1), data["count"], 0)
	})
}

func TestHandler_Balance(t *testing.T) {
	f := newFixture(t)
	f.sms.balanceFn = func(context.Context) ([]domain.BalanceInfo, error) {
		return []domain.BalanceInfo{{Country: "Togo", Balance: 120}}, nil
	}

	t.Run("default channel", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/balance", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "afriksms", body["channel"])
		balances := body["balances"].([]any)
		require.Len(t, balances, 1)
		assert.Equal(t, "Togo", balances[0].(map[string]any)["country"])
	})

	t.Run("empty balance renders an empty list", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/balance?channel=whatsapp", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"channel":"whatsapp","balances":[]}`, rec.Body.String())
	})

	t.Run("vendor error is a failed response", func(t *testing.T) {
		g := newFixture(t)
		g.sms.balanceFn = func(context.Context) ([]domain.BalanceInfo, error) {
			return nil, domain.APIError(domain.CodeInsufficientBalance, "no credit")
		}

		rec := g.do(t, http.MethodGet, "/v1/balance", nil)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "INSUFFICIENT_BALANCE", body["status"])
		data := responseData(t, body)
		assert.Equal(t, false, data["transport"])
		assert.Equal(t, "no credit", data["api_message"])
	})
}

func TestHandler_ConfigureCallback(t *testing.T) {
	t.Run("method defaults to POST", func(t *testing.T) {
		f := newFixture(t)
		f.sms.callbackFn = func(_ context.Context, url, method string) (domain.Response, error) {
			assert.Equal(t, "https://example.com/dlr", url)
			assert.Equal(t, http.MethodPost, method)
			return domain.SuccessResponse("ok", "", nil), nil
		}

		rec := f.do(t, http.MethodPost, "/v1/callback", map[string]any{"url": "https://example.com/dlr"})

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("whatsapp cannot configure callbacks", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/v1/callback", map[string]any{"channel": "whatsapp", "url": "https://example.com"})

		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	t.Run("url required", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/v1/callback", map[string]any{"method": "GET"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/messages", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_NotConfigured(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(HandlerConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}).Register(mux)

	for _, target := range []string{"/v1/balance", "/v1/otp/status?phone=" + testPhone} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}
