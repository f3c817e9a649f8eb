package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/messaging/app"
)

// maxReplyBytes bounds how much of a vendor reply is read.
const maxReplyBytes = 1 << 20

// HTTPDoer is the subset of *http.Client used by HTTP gateways.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AfrikSMSConfig configures the AfrikSMS gateway. ClientID and APIKey are
// required; everything else has a default.
type AfrikSMSConfig struct {
	ClientID    string
	APIKey      domain.SecretString
	SenderID    string
	BaseURL     string
	Timeout     time.Duration
	RetryTimes  int
	RetrySleep  time.Duration
	CountryCode string
	// HTTPClient overrides the client built from Timeout.
	HTTPClient HTTPDoer
	Logger     *slog.Logger
}

// AfrikSMSGateway implements the extended SMS capability set against the
// AfrikSMS key/value HTTP API. Transport failures (connectivity after
// retries, non-2xx) are returned as errors; replies carrying an application
// code are returned as a Response.
type AfrikSMSGateway struct {
	clientID   string
	apiKey     domain.SecretString
	senderID   string
	baseURL    string
	retryTimes int
	retrySleep time.Duration
	client     HTTPDoer
	formatter  domain.PhoneFormatter
	logger     *slog.Logger
}

var _ app.SMSGateway = (*AfrikSMSGateway)(nil)

// NewAfrikSMSGateway validates cfg and fails with ConfigurationMissing before
// any network activity when a credential is absent.
func NewAfrikSMSGateway(cfg AfrikSMSConfig) (*AfrikSMSGateway, error) {
	if cfg.ClientID == "" {
		return nil, domain.ConfigurationMissing("afriksms.client_id")
	}
	if cfg.APIKey.IsEmpty() {
		return nil, domain.ConfigurationMissing("afriksms.api_key")
	}

	g := &AfrikSMSGateway{
		clientID:   cfg.ClientID,
		apiKey:     cfg.APIKey,
		senderID:   cfg.SenderID,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		retryTimes: cfg.RetryTimes,
		retrySleep: cfg.RetrySleep,
		client:     cfg.HTTPClient,
		formatter:  domain.NewPhoneFormatter(cfg.CountryCode),
		logger:     cfg.Logger,
	}
	if g.senderID == "" {
		g.senderID = domain.DefaultSenderID
	}
	if g.baseURL == "" {
		g.baseURL = domain.DefaultAfrikSMSURL
	}
	if g.retryTimes < 1 {
		g.retryTimes = 1
	}
	if g.retrySleep < 0 {
		g.retrySleep = 0
	}
	if g.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = domain.DefaultVendorTimeout
		}
		g.client = &http.Client{Timeout: timeout}
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

// Name implements app.Gateway.
func (g *AfrikSMSGateway) Name() string { return "afriksms" }

// Send delivers one message through GET /send.
func (g *AfrikSMSGateway) Send(ctx context.Context, msg domain.SmsMessage) (domain.Response, error) {
	recipient, err := g.recipient(msg.Recipient)
	if err != nil {
		return domain.Response{}, err
	}

	params := g.authParams()
	params.Set("SenderId", g.sender(msg.SenderID))
	params.Set("Message", msg.Content)
	params.Set("MobileNumbers", recipient)

	payload, err := g.get(ctx, "send", "/send", params)
	if err != nil {
		return domain.Response{}, err
	}
	resp := domain.ResponseFromAPI(payload)
	g.logReply(ctx, "send", resp, "recipient", domain.MaskPhone(recipient))
	return resp, nil
}

// SendBulk delivers the same content to up to MaxBulkRecipients numbers in a
// single multipart POST /send_multisms. The vendor's code covers the whole
// batch.
func (g *AfrikSMSGateway) SendBulk(ctx context.Context, msg domain.BulkMessage) (domain.Response, error) {
	if msg.Count() > domain.MaxBulkRecipients {
		return domain.Response{}, domain.SendFailed(
			fmt.Sprintf("Maximum %d recipients allowed per bulk request", domain.MaxBulkRecipients),
			map[string]any{"count": msg.Count()},
		)
	}

	recipients := g.formatter.FormatMany(msg.Recipients)
	payload, err := g.postMultipart(ctx, "sendBulk", "/send_multisms", [][2]string{
		{"ClientId", g.clientID},
		{"ApiKey", g.apiKey.Expose()},
		{"SenderId", g.sender(msg.SenderID)},
		{"Message", msg.Content},
		{"MobileNumbers", strings.Join(recipients, ",")},
	})
	if err != nil {
		return domain.Response{}, err
	}
	resp := domain.ResponseFromAPI(payload)
	g.logReply(ctx, "sendBulk", resp, "count", msg.Count())
	return resp, nil
}

type personalizedEntry struct {
	MobileNumbers string `json:"MobileNumbers"`
	Message       string `json:"Message"`
}

// SendPersonalized submits distinct content per recipient as one multipart
// POST /send_customer_multisms.
func (g *AfrikSMSGateway) SendPersonalized(ctx context.Context, msgs []domain.PersonalizedMessage, senderID string) (domain.Response, error) {
	if len(msgs) > domain.MaxBulkRecipients {
		return domain.Response{}, domain.SendFailed(
			fmt.Sprintf("Maximum %d messages allowed per personalized request", domain.MaxBulkRecipients),
			map[string]any{"count": len(msgs)},
		)
	}

	entries := make([]personalizedEntry, len(msgs))
	for i, m := range msgs {
		entries[i] = personalizedEntry{MobileNumbers: g.formatter.Format(m.Recipient), Message: m.Content}
	}
	content, err := json.Marshal(entries)
	if err != nil {
		return domain.Response{}, fmt.Errorf("afriksms: encode personalized messages: %w", err)
	}

	payload, err := g.postMultipart(ctx, "sendPersonalized", "/send_customer_multisms", [][2]string{
		{"ClientId", g.clientID},
		{"ApiKey", g.apiKey.Expose()},
		{"SenderId", g.sender(senderID)},
		{"ContentMessage", string(content)},
	})
	if err != nil {
		return domain.Response{}, err
	}
	resp := domain.ResponseFromAPI(payload)
	g.logReply(ctx, "sendPersonalized", resp, "count", len(msgs))
	return resp, nil
}

// SendWithEmail sends through GET /send_emailsms with an email copy.
func (g *AfrikSMSGateway) SendWithEmail(ctx context.Context, msg domain.SmsMessage, email, subject string) (domain.Response, error) {
	recipient, err := g.recipient(msg.Recipient)
	if err != nil {
		return domain.Response{}, err
	}

	params := g.authParams()
	params.Set("SenderId", g.sender(msg.SenderID))
	params.Set("Message", msg.Content)
	params.Set("MobileNumbers", recipient)
	params.Set("Email", email)
	params.Set("Subject", subject)

	payload, err := g.get(ctx, "sendWithEmail", "/send_emailsms", params)
	if err != nil {
		return domain.Response{}, err
	}
	resp := domain.ResponseFromAPI(payload)
	g.logReply(ctx, "sendWithEmail", resp, "recipient", domain.MaskPhone(recipient))
	return resp, nil
}

// GetBalance reads per-country credit from GET /solde. A non-success code is
// returned as an APIError.
func (g *AfrikSMSGateway) GetBalance(ctx context.Context) ([]domain.BalanceInfo, error) {
	payload, err := g.get(ctx, "getBalance", "/solde", g.authParams())
	if err != nil {
		return nil, err
	}

	resp := domain.ResponseFromAPI(payload)
	if resp.Failed() {
		g.logReply(ctx, "getBalance", resp)
		return nil, domain.APIError(resp.Code(), resp.Message())
	}

	information, _ := payload["information"].([]any)
	balances := make([]domain.BalanceInfo, 0, len(information))
	for _, item := range information {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		balances = append(balances, domain.BalanceInfoFromMap(entry))
	}
	return balances, nil
}

// ConfigureCallback registers the delivery webhook through GET /callback_url.
// GET is encoded as TypeNotification=2, anything else as 1.
func (g *AfrikSMSGateway) ConfigureCallback(ctx context.Context, callbackURL, method string) (domain.Response, error) {
	typeNotification := "1"
	if strings.EqualFold(strings.TrimSpace(method), http.MethodGet) {
		typeNotification = "2"
	}

	params := g.authParams()
	params.Set("notifyURL", callbackURL)
	params.Set("TypeNotification", typeNotification)

	payload, err := g.get(ctx, "configureCallback", "/callback_url", params)
	if err != nil {
		return domain.Response{}, err
	}
	resp := domain.ResponseFromAPI(payload)
	g.logReply(ctx, "configureCallback", resp, "url", callbackURL)
	return resp, nil
}

func (g *AfrikSMSGateway) recipient(phone string) (string, error) {
	formatted := g.formatter.Format(phone)
	if !g.formatter.IsValid(formatted) {
		return "", domain.InvalidRecipient(phone)
	}
	return formatted, nil
}

func (g *AfrikSMSGateway) sender(override string) string {
	if override != "" {
		return override
	}
	return g.senderID
}

func (g *AfrikSMSGateway) authParams() url.Values {
	params := url.Values{}
	params.Set("ClientId", g.clientID)
	params.Set("ApiKey", g.apiKey.Expose())
	return params
}

func (g *AfrikSMSGateway) get(ctx context.Context, op, path string, params url.Values) (map[string]any, error) {
	endpoint := g.baseURL + path + "?" + params.Encode()
	return g.do(ctx, op, path, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
}

func (g *AfrikSMSGateway) postMultipart(ctx context.Context, op, path string, fields [][2]string) (map[string]any, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("afriksms: write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("afriksms: close multipart body: %w", err)
	}

	raw := body.Bytes()
	contentType := w.FormDataContentType()
	endpoint := g.baseURL + path
	return g.do(ctx, op, path, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
}

// do performs the request, retrying only connectivity failures with a fixed
// delay for at most retryTimes attempts in total.
func (g *AfrikSMSGateway) do(ctx context.Context, op, path string, build func(context.Context) (*http.Request, error)) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "gateway.afriksms."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "afriksms"),
		attribute.String("http.route", path),
	)

	var res *http.Response
	attempt := func() error {
		req, err := build(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		r, err := g.client.Do(req)
		if err != nil {
			// *url.Error embeds the query string, which carries the API key.
			var ue *url.Error
			if errors.As(err, &ue) {
				err = fmt.Errorf("%s %s: %w", ue.Op, path, ue.Err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		res = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.retrySleep), uint64(g.retryTimes-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		g.logger.WarnContext(ctx, "afriksms.retry", "operation", op, "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.ErrorContext(ctx, "afriksms.request_failed", "operation", op, "error", err)
		return nil, domain.SendFailed("HTTP request failed", map[string]any{"operation": op}).
			WithCause(err).
			AsTransport()
	}
	defer func() { _ = res.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	body, err := io.ReadAll(io.LimitReader(res.Body, maxReplyBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.SendFailed("read vendor reply", map[string]any{"operation": op}).
			WithCause(err).
			AsTransport()
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		err := domain.SendFailed(fmt.Sprintf("HTTP %d", res.StatusCode), map[string]any{
			"operation": op,
			"status":    res.StatusCode,
		}).AsTransport()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.ErrorContext(ctx, "afriksms.request_failed", "operation", op, "status", res.StatusCode)
		return nil, err
	}

	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || payload == nil {
		if err == nil {
			err = errors.New("empty reply")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.SendFailed("malformed vendor reply", map[string]any{"operation": op}).WithCause(err)
	}
	return payload, nil
}

func (g *AfrikSMSGateway) logReply(ctx context.Context, op string, resp domain.Response, attrs ...any) {
	args := append([]any{
		"operation", op,
		"response_code", int(resp.Code()),
		"response_message", resp.Message(),
	}, attrs...)
	g.logger.InfoContext(ctx, "afriksms.reply", args...)
}
