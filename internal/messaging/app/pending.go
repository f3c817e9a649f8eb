package app

import (
	"context"
	"fmt"
	"maps"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

// PendingSMS is a fluent single-recipient send built from Manager.To.
type PendingSMS struct {
	manager   Manager
	recipient string
	senderID  string
}

// To starts a fluent send to one recipient.
func (m Manager) To(phone string) PendingSMS {
	return PendingSMS{manager: m, recipient: phone}
}

// From overrides the sender ID.
func (p PendingSMS) From(senderID string) PendingSMS {
	p.senderID = senderID
	return p
}

// Send delivers content.
func (p PendingSMS) Send(ctx context.Context, content string) (domain.Response, error) {
	return p.manager.Send(ctx, p.message(content))
}

// WithEmail delivers content with an email copy.
func (p PendingSMS) WithEmail(ctx context.Context, content, email, subject string) (domain.Response, error) {
	return p.manager.SendWithEmail(ctx, p.message(content), email, subject)
}

func (p PendingSMS) message(content string) domain.SmsMessage {
	return domain.SmsMessage{Recipient: p.recipient, Content: content, SenderID: p.senderID}
}

// PendingBulkSMS is a fluent multi-recipient send built from Manager.ToMany.
type PendingBulkSMS struct {
	manager    Manager
	recipients []string
	senderID   string
}

// ToMany starts a fluent send to several recipients.
func (m Manager) ToMany(phones []string) PendingBulkSMS {
	return PendingBulkSMS{manager: m, recipients: append([]string(nil), phones...)}
}

// From overrides the sender ID.
func (p PendingBulkSMS) From(senderID string) PendingBulkSMS {
	p.senderID = senderID
	return p
}

// Send delivers the same content to every recipient.
func (p PendingBulkSMS) Send(ctx context.Context, content string) (domain.Response, error) {
	return p.manager.SendBulk(ctx, domain.BulkMessage{
		Recipients: p.recipients,
		Content:    content,
		SenderID:   p.senderID,
	})
}

// SendPersonalized builds each recipient's content with render.
func (p PendingBulkSMS) SendPersonalized(ctx context.Context, render func(phone string) string) (domain.Response, error) {
	msgs := make([]domain.PersonalizedMessage, 0, len(p.recipients))
	for _, phone := range p.recipients {
		msgs = append(msgs, domain.PersonalizedMessage{Recipient: phone, Content: render(phone)})
	}
	return p.manager.SendPersonalized(ctx, msgs, p.senderID)
}

// PendingWhatsApp is a fluent WhatsApp send. A template takes precedence over
// media, which takes precedence over plain text.
type PendingWhatsApp struct {
	manager    Manager
	recipient  string
	contentSID string
	vars       map[string]string
	mediaURL   string
	caption    string
}

// WhatsAppTo starts a fluent WhatsApp send.
func (m Manager) WhatsAppTo(phone string) PendingWhatsApp {
	return PendingWhatsApp{manager: m, recipient: phone}
}

// Template selects a pre-approved template and its variables.
func (p PendingWhatsApp) Template(contentSID string, vars map[string]string) PendingWhatsApp {
	p.contentSID = contentSID
	p.vars = maps.Clone(vars)
	return p
}

// Media attaches a media URL and optional caption.
func (p PendingWhatsApp) Media(url, caption string) PendingWhatsApp {
	p.mediaURL = url
	p.caption = caption
	return p
}

// Send dispatches the message. content is only used for plain sends.
func (p PendingWhatsApp) Send(ctx context.Context, content string) (domain.Response, error) {
	switch {
	case p.contentSID != "":
		return p.manager.SendTemplate(ctx, p.recipient, p.contentSID, p.vars)
	case p.mediaURL != "":
		return p.manager.SendMedia(ctx, p.recipient, p.mediaURL, p.caption)
	case content == "":
		return domain.Response{}, fmt.Errorf("%w: message content, template or media required", domain.ErrInvalidInput)
	}
	return p.manager.Send(ctx, domain.SmsMessage{Recipient: p.recipient, Content: content})
}
