package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/messaging/app"
)

// twilioMessenger is a narrow, consumer-defined interface for the subset of
// the Twilio v2010 API used by the WhatsApp gateway. The real
// *twilioapi.ApiService satisfies it.
type twilioMessenger interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
	FetchBalance(params *twilioapi.FetchBalanceParams) (*twilioapi.ApiV2010Balance, error)
}

var _ twilioMessenger = (*twilioapi.ApiService)(nil)

// NewTwilioAPI builds the SDK client for an account. Missing credentials fail
// with ConfigurationMissing.
func NewTwilioAPI(accountSID string, authToken domain.SecretString, timeout time.Duration) (*twilioapi.ApiService, error) {
	if accountSID == "" {
		return nil, domain.ConfigurationMissing("twilio.sid")
	}
	if authToken.IsEmpty() {
		return nil, domain.ConfigurationMissing("twilio.auth_token")
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken.Expose(),
	})
	if timeout <= 0 {
		timeout = domain.DefaultVendorTimeout
	}
	rc.SetTimeout(timeout)
	return rc.Api, nil
}

// TwilioConfig configures the WhatsApp gateway.
type TwilioConfig struct {
	// WhatsAppFrom is the sender, with or without the "whatsapp:" scheme.
	WhatsAppFrom string
	CountryCode  string
	Logger       *slog.Logger
}

// TwilioWhatsAppGateway implements the WhatsApp capability set on the Twilio
// SDK. Vendor errors never escape: every operation returns a typed failure
// Response instead.
type TwilioWhatsAppGateway struct {
	api       twilioMessenger
	from      string
	formatter domain.PhoneFormatter
	logger    *slog.Logger
}

var _ app.WhatsAppGateway = (*TwilioWhatsAppGateway)(nil)

// NewTwilioWhatsAppGateway creates the gateway over api.
func NewTwilioWhatsAppGateway(api twilioMessenger, cfg TwilioConfig) (*TwilioWhatsAppGateway, error) {
	if cfg.WhatsAppFrom == "" {
		return nil, domain.ConfigurationMissing("twilio.whatsapp_from")
	}
	formatter := domain.NewPhoneFormatter(cfg.CountryCode)
	from := cfg.WhatsAppFrom
	if !strings.HasPrefix(from, "whatsapp:") {
		from = formatter.FormatForWhatsApp(from)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TwilioWhatsAppGateway{api: api, from: from, formatter: formatter, logger: logger}, nil
}

// Name implements app.Gateway.
func (g *TwilioWhatsAppGateway) Name() string { return "twilio" }

// Send delivers a freeform message. Outside the 24h window the vendor answers
// with TEMPLATE_REQUIRED.
func (g *TwilioWhatsAppGateway) Send(ctx context.Context, msg domain.SmsMessage) (domain.Response, error) {
	params := g.params(msg.Recipient)
	params.SetBody(msg.Content)
	return g.create(ctx, "send", params), nil
}

// SendTemplate sends a pre-approved content template. Variables are omitted
// when vars is empty.
func (g *TwilioWhatsAppGateway) SendTemplate(ctx context.Context, recipient, contentSID string, vars map[string]string) (domain.Response, error) {
	params := g.params(recipient)
	params.SetContentSid(contentSID)
	if len(vars) > 0 {
		raw, err := json.Marshal(vars)
		if err != nil {
			return domain.ErrorResponse(domain.CodeUnknown, err.Error(), nil), nil
		}
		params.SetContentVariables(string(raw))
	}
	return g.create(ctx, "sendTemplate", params, attribute.String("messaging.template", contentSID)), nil
}

// SendMedia sends one media URL with an optional caption.
func (g *TwilioWhatsAppGateway) SendMedia(ctx context.Context, recipient, mediaURL, caption string) (domain.Response, error) {
	params := g.params(recipient)
	params.SetMediaUrl([]string{mediaURL})
	if caption != "" {
		params.SetBody(caption)
	}
	return g.create(ctx, "sendMedia", params), nil
}

// SendBulk issues one send per recipient, sequentially. When every send
// fails the batch carries the first failure's code, never PARTIAL_SUCCESS.
func (g *TwilioWhatsAppGateway) SendBulk(ctx context.Context, msg domain.BulkMessage) (domain.Response, error) {
	if msg.Count() > domain.MaxBulkRecipients {
		return domain.Response{}, domain.SendFailed(
			"Maximum "+strconv.Itoa(domain.MaxBulkRecipients)+" recipients allowed per bulk request",
			map[string]any{"count": msg.Count()},
		)
	}
	msgs := make([]domain.PersonalizedMessage, len(msg.Recipients))
	for i, r := range msg.Recipients {
		msgs[i] = domain.PersonalizedMessage{Recipient: r, Content: msg.Content}
	}
	return g.sendEach(ctx, msgs), nil
}

// SendPersonalized issues one send per message, sequentially, and reports
// like SendBulk. senderID is ignored: the WhatsApp sender is fixed per
// account.
func (g *TwilioWhatsAppGateway) SendPersonalized(ctx context.Context, msgs []domain.PersonalizedMessage, _ string) (domain.Response, error) {
	if len(msgs) > domain.MaxBulkRecipients {
		return domain.Response{}, domain.SendFailed(
			"Maximum "+strconv.Itoa(domain.MaxBulkRecipients)+" messages allowed per personalized request",
			map[string]any{"count": len(msgs)},
		)
	}
	return g.sendEach(ctx, msgs), nil
}

// GetBalance is best-effort: any failure yields an empty list.
func (g *TwilioWhatsAppGateway) GetBalance(ctx context.Context) ([]domain.BalanceInfo, error) {
	_, span := tracer.Start(ctx, "gateway.twilio.getBalance")
	defer span.End()

	bal, err := g.api.FetchBalance(&twilioapi.FetchBalanceParams{})
	if err != nil {
		span.RecordError(err)
		g.logger.WarnContext(ctx, "twilio.balance_unavailable", "error", err)
		return []domain.BalanceInfo{}, nil
	}
	amount := 0.0
	if bal != nil && bal.Balance != nil {
		if f, perr := strconv.ParseFloat(*bal.Balance, 64); perr == nil {
			amount = f
		}
	}
	return []domain.BalanceInfo{{Country: "Twilio Account", Balance: int(math.Floor(amount))}}, nil
}

// sendEach reports SUCCESS when every send succeeded, PARTIAL_SUCCESS when
// some did, and the first failure's code when none did.
func (g *TwilioWhatsAppGateway) sendEach(ctx context.Context, msgs []domain.PersonalizedMessage) domain.Response {
	results := make([]map[string]any, 0, len(msgs))
	sent := 0
	failureCode := domain.CodeUnknown
	for _, m := range msgs {
		resp, _ := g.Send(ctx, domain.SmsMessage{Recipient: m.Recipient, Content: m.Content})
		results = append(results, map[string]any{
			"phone":      m.Recipient,
			"success":    resp.Success(),
			"resourceId": resp.ResourceID(),
		})
		if resp.Success() {
			sent++
		} else if len(results)-sent == 1 {
			failureCode = resp.Code()
		}
	}

	data := map[string]any{"results": results, "sent": sent, "failed": len(msgs) - sent}
	switch {
	case sent == len(msgs):
		return domain.NewResponse(domain.CodeSuccess, "All messages sent", "", data)
	case sent > 0:
		return domain.NewResponse(domain.CodePartialSuccess, "Some messages failed", "", data)
	default:
		return domain.NewResponse(failureCode, "All messages failed", "", data)
	}
}

func (g *TwilioWhatsAppGateway) params(recipient string) *twilioapi.CreateMessageParams {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(g.formatter.FormatForWhatsApp(recipient))
	params.SetFrom(g.from)
	return params
}

func (g *TwilioWhatsAppGateway) create(ctx context.Context, op string, params *twilioapi.CreateMessageParams, attrs ...attribute.KeyValue) domain.Response {
	ctx, span := tracer.Start(ctx, "gateway.twilio."+op)
	defer span.End()
	span.SetAttributes(append(attrs, attribute.String("messaging.system", "twilio"))...)

	to := ""
	if params.To != nil {
		to = *params.To
	}

	msg, err := g.api.CreateMessage(params)
	if err != nil {
		resp := twilioErrorResponse(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, resp.Message())
		g.logger.ErrorContext(ctx, "twilio.request_failed",
			"operation", op,
			"to", domain.MaskPhone(to),
			"error_code", resp.Data()["error_code"],
			"error_message", resp.Message(),
		)
		return resp
	}

	sid := deref(msg.Sid)
	data := map[string]any{
		"sid":         sid,
		"status":      deref(msg.Status),
		"dateCreated": deref(msg.DateCreated),
		"direction":   deref(msg.Direction),
	}
	g.logger.InfoContext(ctx, "twilio.reply",
		"operation", op,
		"to", domain.MaskPhone(to),
		"sid", sid,
		"status", data["status"],
	)
	return domain.SuccessResponse("Message sent successfully", sid, data)
}

// twilioErrorResponse maps vendor error codes onto the domain taxonomy.
func twilioErrorResponse(err error) domain.Response {
	errorCode := 0
	message := err.Error()
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		errorCode = restErr.Code
		if restErr.Message != "" {
			message = restErr.Message
		}
	}
	return domain.ErrorResponse(twilioCode(errorCode), message, map[string]any{
		"error_code":    errorCode,
		"error_message": message,
	})
}

func twilioCode(errorCode int) domain.ResponseCode {
	switch errorCode {
	case 20003, 401:
		return domain.CodeInvalidCredentials
	case 21211, 21614:
		return domain.CodeInvalidRecipient
	case 21608, 21610, 21612:
		return domain.CodeInsufficientBalance
	case 63016:
		return domain.CodeTemplateRequired
	default:
		return domain.CodeUnknown
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
