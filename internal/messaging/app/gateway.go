package app

import (
	"context"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

// Operation names reported by UnsupportedOperation errors.
const (
	OpSendBulk          = "sendBulk"
	OpSendPersonalized  = "sendPersonalized"
	OpSendWithEmail     = "sendWithEmail"
	OpConfigureCallback = "configureCallback"
	OpSendTemplate      = "sendTemplate"
	OpSendMedia         = "sendMedia"
)

// Gateway is the minimal capability set every vendor adapter implements.
type Gateway interface {
	// Name identifies the gateway in logs and error messages.
	Name() string
	Send(ctx context.Context, msg domain.SmsMessage) (domain.Response, error)
	GetBalance(ctx context.Context) ([]domain.BalanceInfo, error)
}

// BulkGateway can deliver to many recipients per call.
type BulkGateway interface {
	Gateway
	SendBulk(ctx context.Context, msg domain.BulkMessage) (domain.Response, error)
	SendPersonalized(ctx context.Context, msgs []domain.PersonalizedMessage, senderID string) (domain.Response, error)
}

// SMSGateway is the extended SMS-style capability set.
type SMSGateway interface {
	BulkGateway
	SendWithEmail(ctx context.Context, msg domain.SmsMessage, email, subject string) (domain.Response, error)
	// ConfigureCallback registers a delivery webhook. method is GET or POST,
	// case-insensitive.
	ConfigureCallback(ctx context.Context, url, method string) (domain.Response, error)
}

// WhatsAppGateway is the WhatsApp-style capability set.
type WhatsAppGateway interface {
	BulkGateway
	// SendTemplate sends a pre-approved template. Empty vars are omitted
	// from the vendor call.
	SendTemplate(ctx context.Context, recipient, contentSID string, vars map[string]string) (domain.Response, error)
	SendMedia(ctx context.Context, recipient, mediaURL, caption string) (domain.Response, error)
}

// OTPSender is the capability OTPService needs: anything that can send one
// message.
type OTPSender interface {
	Send(ctx context.Context, msg domain.SmsMessage) (domain.Response, error)
}

// rawCodeSender marks senders that expect the bare code as content because
// the vendor formats it through a template.
type rawCodeSender interface {
	sendsRawCode()
}
