package app

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/observability"
)

// Manager is a capability-checked façade over one bound gateway. It is an
// immutable value: Using returns a new Manager and never rebinds the
// receiver, so concurrent callers can switch gateways without shared state.
type Manager struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewManager binds a Manager to gateway.
func NewManager(gateway Gateway, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return Manager{gateway: gateway, logger: logger}
}

// Using returns a Manager bound to gateway.
func (m Manager) Using(gateway Gateway) Manager {
	m.gateway = gateway
	return m
}

// Gateway returns the bound gateway.
func (m Manager) Gateway() Gateway {
	return m.gateway
}

// Send delivers one message.
func (m Manager) Send(ctx context.Context, msg domain.SmsMessage) (domain.Response, error) {
	ctx, span := m.start(ctx, "send")
	defer span.End()

	resp, err := m.gateway.Send(ctx, msg)
	recordSend(ctx, span, m.gateway.Name(), "send", resp, err)
	return resp, err
}

// GetBalance returns the gateway's balance entries.
func (m Manager) GetBalance(ctx context.Context) ([]domain.BalanceInfo, error) {
	ctx, span := m.start(ctx, "getBalance")
	defer span.End()

	balances, err := m.gateway.GetBalance(ctx)
	recordSend(ctx, span, m.gateway.Name(), "getBalance", domain.SuccessResponse("", "", nil), err)
	return balances, err
}

// SendBulk delivers the same content to every recipient.
func (m Manager) SendBulk(ctx context.Context, msg domain.BulkMessage) (domain.Response, error) {
	g, err := capability[BulkGateway](ctx, m, OpSendBulk)
	if err != nil {
		return domain.Response{}, err
	}
	ctx, span := m.start(ctx, OpSendBulk)
	defer span.End()
	span.SetAttributes(attribute.Int("messaging.recipients", msg.Count()))

	resp, err := g.SendBulk(ctx, msg)
	recordSend(ctx, span, g.Name(), OpSendBulk, resp, err)
	return resp, err
}

// SendPersonalized delivers distinct content per recipient.
func (m Manager) SendPersonalized(ctx context.Context, msgs []domain.PersonalizedMessage, senderID string) (domain.Response, error) {
	g, err := capability[BulkGateway](ctx, m, OpSendPersonalized)
	if err != nil {
		return domain.Response{}, err
	}
	ctx, span := m.start(ctx, OpSendPersonalized)
	defer span.End()
	span.SetAttributes(attribute.Int("messaging.recipients", len(msgs)))

	resp, err := g.SendPersonalized(ctx, msgs, senderID)
	recordSend(ctx, span, g.Name(), OpSendPersonalized, resp, err)
	return resp, err
}

// SendWithEmail sends an SMS with an email copy.
func (m Manager) SendWithEmail(ctx context.Context, msg domain.SmsMessage, email, subject string) (domain.Response, error) {
	g, err := capability[SMSGateway](ctx, m, OpSendWithEmail)
	if err != nil {
		return domain.Response{}, err
	}
	ctx, span := m.start(ctx, OpSendWithEmail)
	defer span.End()

	resp, err := g.SendWithEmail(ctx, msg, email, subject)
	recordSend(ctx, span, g.Name(), OpSendWithEmail, resp, err)
	return resp, err
}

// ConfigureCallback registers the delivery webhook URL.
func (m Manager) ConfigureCallback(ctx context.Context, url, method string) (domain.Response, error) {
	g, err := capability[SMSGateway](ctx, m, OpConfigureCallback)
	if err != nil {
		return domain.Response{}, err
	}
	ctx, span := m.start(ctx, OpConfigureCallback)
	defer span.End()

	resp, err := g.ConfigureCallback(ctx, url, method)
	recordSend(ctx, span, g.Name(), OpConfigureCallback, resp, err)
	return resp, err
}

// SendTemplate sends a pre-approved WhatsApp template.
func (m Manager) SendTemplate(ctx context.Context, recipient, contentSID string, vars map[string]string) (domain.Response, error) {
	g, err := capability[WhatsAppGateway](ctx, m, OpSendTemplate)
	if err != nil {
		return domain.Response{}, err
	}
	ctx, span := m.start(ctx, OpSendTemplate)
	defer span.End()

	resp, err := g.SendTemplate(ctx, recipient, contentSID, vars)
	recordSend(ctx, span, g.Name(), OpSendTemplate, resp, err)
	return resp, err
}

// SendMedia sends a media message with an optional caption.
func (m Manager) SendMedia(ctx context.Context, recipient, mediaURL, caption string) (domain.Response, error) {
	g, err := capability[WhatsAppGateway](ctx, m, OpSendMedia)
	if err != nil {
		return domain.Response{}, err
	}
	ctx, span := m.start(ctx, OpSendMedia)
	defer span.End()

	resp, err := g.SendMedia(ctx, recipient, mediaURL, caption)
	recordSend(ctx, span, g.Name(), OpSendMedia, resp, err)
	return resp, err
}

func (m Manager) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "messaging."+op, trace.WithAttributes(
		attribute.String("messaging.gateway", m.gateway.Name()),
	))
}

// capability asserts that the bound gateway implements T, failing with
// UnsupportedOperation before any delegation.
func capability[T Gateway](ctx context.Context, m Manager, op string) (T, error) {
	g, ok := m.gateway.(T)
	if !ok {
		var zero T
		unsupportedOpsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("gateway", m.gateway.Name()),
			attribute.String("operation", op),
		))
		observability.WithTraceID(ctx, m.logger).WarnContext(ctx, "messaging.unsupported_operation",
			"gateway", m.gateway.Name(), "operation", op)
		return zero, domain.UnsupportedOperation(op, m.gateway.Name())
	}
	return g, nil
}
