package adapter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/messaging/app"
)

// LogGateway is a fake gateway that logs messages instead of sending them.
// Suitable for local development and testing environments. It implements the
// full SMS capability set and always succeeds.
type LogGateway struct {
	formatter domain.PhoneFormatter
	logger    *slog.Logger
}

var _ app.SMSGateway = (*LogGateway)(nil)

// NewLogGateway creates a LogGateway writing to logger.
func NewLogGateway(countryCode string, logger *slog.Logger) *LogGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogGateway{formatter: domain.NewPhoneFormatter(countryCode), logger: logger}
}

// Name implements app.Gateway.
func (g *LogGateway) Name() string { return "log" }

// Send logs the message with a masked recipient. Content is logged because
// config validation keeps this driver out of production.
func (g *LogGateway) Send(ctx context.Context, msg domain.SmsMessage) (domain.Response, error) {
	recipient := g.formatter.Format(msg.Recipient)
	if !g.formatter.IsValid(recipient) {
		return domain.Response{}, domain.InvalidRecipient(msg.Recipient)
	}
	id := newLogResourceID()
	g.logger.InfoContext(ctx, "message delivery (log-only)",
		slog.String("recipient", domain.MaskPhone(recipient)),
		slog.String("content", msg.Content),
		slog.String("resource_id", id),
	)
	return domain.SuccessResponse("Message logged", id, nil), nil
}

// SendBulk logs one line for the whole batch.
func (g *LogGateway) SendBulk(ctx context.Context, msg domain.BulkMessage) (domain.Response, error) {
	if msg.Count() > domain.MaxBulkRecipients {
		return domain.Response{}, domain.SendFailed("too many recipients", map[string]any{"count": msg.Count()})
	}
	id := newLogResourceID()
	g.logger.InfoContext(ctx, "bulk delivery (log-only)",
		slog.Int("count", msg.Count()),
		slog.String("content", msg.Content),
		slog.String("resource_id", id),
	)
	return domain.SuccessResponse("Messages logged", id, map[string]any{"count": msg.Count()}), nil
}

// SendPersonalized logs one line per message.
func (g *LogGateway) SendPersonalized(ctx context.Context, msgs []domain.PersonalizedMessage, _ string) (domain.Response, error) {
	if len(msgs) > domain.MaxBulkRecipients {
		return domain.Response{}, domain.SendFailed("too many messages", map[string]any{"count": len(msgs)})
	}
	id := newLogResourceID()
	for _, m := range msgs {
		g.logger.InfoContext(ctx, "personalized delivery (log-only)",
			slog.String("recipient", domain.MaskPhone(g.formatter.Format(m.Recipient))),
			slog.String("content", m.Content),
			slog.String("resource_id", id),
		)
	}
	return domain.SuccessResponse("Messages logged", id, map[string]any{"count": len(msgs)}), nil
}

// SendWithEmail logs the message and the email target.
func (g *LogGateway) SendWithEmail(ctx context.Context, msg domain.SmsMessage, email, subject string) (domain.Response, error) {
	resp, err := g.Send(ctx, msg)
	if err != nil {
		return resp, err
	}
	g.logger.InfoContext(ctx, "email copy (log-only)", slog.String("email", email), slog.String("subject", subject))
	return resp, nil
}

// ConfigureCallback logs the callback registration.
func (g *LogGateway) ConfigureCallback(ctx context.Context, url, method string) (domain.Response, error) {
	g.logger.InfoContext(ctx, "callback configured (log-only)",
		slog.String("url", url), slog.String("method", strings.ToUpper(method)))
	return domain.SuccessResponse("Callback configured", "", nil), nil
}

// GetBalance reports a single zero-credit entry.
func (g *LogGateway) GetBalance(context.Context) ([]domain.BalanceInfo, error) {
	return []domain.BalanceInfo{{Country: "Log", Balance: 0}}, nil
}

func newLogResourceID() string {
	return "log-" + uuid.NewString()
}
