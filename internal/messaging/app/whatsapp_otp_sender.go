package app

import (
	"context"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

// WhatsAppOTPSender delivers codes through a pre-approved WhatsApp template.
// The bare code is passed as the template variable; the vendor renders the
// surrounding text.
type WhatsAppOTPSender struct {
	gateway      WhatsAppGateway
	templateSID  string
	codeVariable string
}

// NewWhatsAppOTPSender fails with ConfigurationMissing when templateSID is empty.
func NewWhatsAppOTPSender(gateway WhatsAppGateway, templateSID, codeVariable string) (*WhatsAppOTPSender, error) {
	if templateSID == "" {
		return nil, domain.ConfigurationMissing("otp.whatsapp.template_sid")
	}
	if codeVariable == "" {
		codeVariable = domain.DefaultOTPCodeVariable
	}
	return &WhatsAppOTPSender{gateway: gateway, templateSID: templateSID, codeVariable: codeVariable}, nil
}

// Send delivers msg.Content as the template's code variable.
func (s *WhatsAppOTPSender) Send(ctx context.Context, msg domain.SmsMessage) (domain.Response, error) {
	return s.gateway.SendTemplate(ctx, msg.Recipient, s.templateSID, map[string]string{
		s.codeVariable: msg.Content,
	})
}

func (*WhatsAppOTPSender) sendsRawCode() {}

var (
	_ OTPSender     = (*WhatsAppOTPSender)(nil)
	_ rawCodeSender = (*WhatsAppOTPSender)(nil)
)
