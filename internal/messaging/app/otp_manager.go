package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

// GatewayResolver resolves a gateway by channel name. *Messaging satisfies it.
type GatewayResolver interface {
	Gateway(name string) (Gateway, error)
}

// OTPManagerConfig holds the dependencies shared by every per-channel
// OTPService.
type OTPManagerConfig struct {
	Resolver       GatewayResolver
	Store          OTPStore
	DefaultChannel string
	Length         int
	Expiry         time.Duration
	MaxAttempts    int
	Message        string
	KeyPrefix      string
	// WhatsAppTemplateSID is required by the WhatsApp channel and checked on
	// its first use.
	WhatsAppTemplateSID  string
	WhatsAppCodeVariable string
	Generator            CodeGenerator
	Clock                domain.Clock
	Logger               *slog.Logger
}

// OTPManager caches one OTPService per channel, built on first use.
type OTPManager struct {
	mu       sync.Mutex
	services map[string]*OTPService
	cfg      OTPManagerConfig
}

// NewOTPManager creates an OTPManager.
func NewOTPManager(cfg OTPManagerConfig) *OTPManager {
	if cfg.DefaultChannel == "" {
		cfg.DefaultChannel = string(domain.DefaultChannel)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OTPManager{services: make(map[string]*OTPService), cfg: cfg}
}

// Channel returns the OTPService for name. An empty name selects the default
// channel.
func (m *OTPManager) Channel(name string) (*OTPService, error) {
	if name == "" {
		name = m.cfg.DefaultChannel
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.services[name]; ok {
		return s, nil
	}

	g, err := m.cfg.Resolver.Gateway(name)
	if err != nil {
		return nil, err
	}

	var sender OTPSender = g
	if CanonicalChannel(name) == string(domain.ChannelWhatsApp) {
		wa, ok := g.(WhatsAppGateway)
		if !ok {
			return nil, domain.UnsupportedOperation(OpSendTemplate, g.Name())
		}
		sender, err = NewWhatsAppOTPSender(wa, m.cfg.WhatsAppTemplateSID, m.cfg.WhatsAppCodeVariable)
		if err != nil {
			return nil, err
		}
	}

	s := NewOTPService(OTPServiceConfig{
		Sender:      sender,
		Store:       m.cfg.Store,
		Channel:     name,
		Length:      m.cfg.Length,
		Expiry:      m.cfg.Expiry,
		MaxAttempts: m.cfg.MaxAttempts,
		Message:     m.cfg.Message,
		KeyPrefix:   m.cfg.KeyPrefix,
		Generator:   m.cfg.Generator,
		Clock:       m.cfg.Clock,
		Logger:      m.cfg.Logger,
	})
	m.services[name] = s
	return s, nil
}

// SMS returns the SMS channel's OTPService.
func (m *OTPManager) SMS() (*OTPService, error) {
	return m.Channel(string(domain.ChannelSMS))
}

// WhatsApp returns the WhatsApp channel's OTPService.
func (m *OTPManager) WhatsApp() (*OTPService, error) {
	return m.Channel(string(domain.ChannelWhatsApp))
}

// Send issues a code on the default channel.
func (m *OTPManager) Send(ctx context.Context, phone, purpose string) (domain.OTPResult, error) {
	s, err := m.Channel("")
	if err != nil {
		return domain.OTPResult{}, err
	}
	return s.Send(ctx, phone, purpose)
}

// Verify checks a code on the default channel.
func (m *OTPManager) Verify(ctx context.Context, phone, code, purpose string) (bool, error) {
	s, err := m.Channel("")
	if err != nil {
		return false, err
	}
	return s.Verify(ctx, phone, code, purpose)
}

// Resend reissues a code on the default channel.
func (m *OTPManager) Resend(ctx context.Context, phone, purpose string) (domain.OTPResult, error) {
	s, err := m.Channel("")
	if err != nil {
		return domain.OTPResult{}, err
	}
	return s.Resend(ctx, phone, purpose)
}

// IsValid reports a pending code on the default channel.
func (m *OTPManager) IsValid(ctx context.Context, phone, purpose string) (bool, error) {
	s, err := m.Channel("")
	if err != nil {
		return false, err
	}
	return s.IsValid(ctx, phone, purpose)
}

// RemainingAttempts reports attempts left on the default channel.
func (m *OTPManager) RemainingAttempts(ctx context.Context, phone, purpose string) (int, error) {
	s, err := m.Channel("")
	if err != nil {
		return 0, err
	}
	return s.RemainingAttempts(ctx, phone, purpose)
}

// Invalidate deletes a pending code on the default channel.
func (m *OTPManager) Invalidate(ctx context.Context, phone, purpose string) error {
	s, err := m.Channel("")
	if err != nil {
		return err
	}
	return s.Invalidate(ctx, phone, purpose)
}

var _ GatewayResolver = (*Messaging)(nil)
