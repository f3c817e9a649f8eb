package app

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

// GatewayFactory builds a gateway on first use. Construction errors (missing
// credentials) are returned to the caller and the next resolution retries.
type GatewayFactory func() (Gateway, error)

// channelAliases maps vendor names to the built-in channel they serve.
var channelAliases = map[string]string{
	"afriksms": string(domain.ChannelSMS),
	"twilio":   string(domain.ChannelWhatsApp),
}

// CanonicalChannel resolves a vendor alias to its channel name.
func CanonicalChannel(name string) string {
	if c, ok := channelAliases[name]; ok {
		return c
	}
	return name
}

// MessagingConfig holds the dependencies for Messaging.
type MessagingConfig struct {
	// Factories are keyed by canonical channel name ("sms", "whatsapp").
	Factories      map[string]GatewayFactory
	DefaultChannel string
	Logger         *slog.Logger
}

// Messaging resolves gateways by channel name. Built-in channels are
// constructed lazily and cached; Extend registers custom gateways that
// override resolution for their exact name.
type Messaging struct {
	mu             sync.Mutex
	factories      map[string]GatewayFactory
	resolved       map[string]Gateway
	custom         map[string]Gateway
	defaultChannel string
	logger         *slog.Logger
}

// NewMessaging creates a Messaging router.
func NewMessaging(cfg MessagingConfig) *Messaging {
	m := &Messaging{
		factories:      make(map[string]GatewayFactory, len(cfg.Factories)),
		resolved:       make(map[string]Gateway),
		custom:         make(map[string]Gateway),
		defaultChannel: cfg.DefaultChannel,
		logger:         cfg.Logger,
	}
	for name, f := range cfg.Factories {
		m.factories[name] = f
	}
	if m.defaultChannel == "" {
		m.defaultChannel = string(domain.DefaultChannel)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Extend registers gateway under name, overriding built-in resolution for
// that exact name.
func (m *Messaging) Extend(name string, gateway Gateway) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.custom[name] = gateway
}

// Gateway resolves the gateway for name. An empty name selects the default
// channel.
func (m *Messaging) Gateway(name string) (Gateway, error) {
	if name == "" {
		name = m.defaultChannel
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.custom[name]; ok {
		return g, nil
	}
	canonical := CanonicalChannel(name)
	if g, ok := m.resolved[canonical]; ok {
		return g, nil
	}
	factory, ok := m.factories[canonical]
	if !ok {
		return nil, domain.UnknownChannel(name)
	}
	g, err := factory()
	if err != nil {
		return nil, err
	}
	m.resolved[canonical] = g
	m.logger.Debug("messaging.gateway_resolved", "channel", canonical, "gateway", g.Name())
	return g, nil
}

// Channel returns a Manager bound to the gateway for name.
func (m *Messaging) Channel(name string) (Manager, error) {
	g, err := m.Gateway(name)
	if err != nil {
		return Manager{}, err
	}
	return NewManager(g, m.logger), nil
}

// SMS returns a Manager bound to the SMS channel.
func (m *Messaging) SMS() (Manager, error) {
	return m.Channel(string(domain.ChannelSMS))
}

// WhatsApp returns the WhatsApp channel's gateway with its full capability set.
func (m *Messaging) WhatsApp() (WhatsAppGateway, error) {
	g, err := m.Gateway(string(domain.ChannelWhatsApp))
	if err != nil {
		return nil, err
	}
	wa, ok := g.(WhatsAppGateway)
	if !ok {
		return nil, domain.UnsupportedOperation(OpSendTemplate, g.Name())
	}
	return wa, nil
}

// DefaultChannel returns the channel used when none is named.
func (m *Messaging) DefaultChannel() string {
	return m.defaultChannel
}

// Channels lists every resolvable channel name, aliases included.
func (m *Messaging) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	for name := range m.factories {
		seen[name] = struct{}{}
	}
	for alias, target := range channelAliases {
		if _, ok := m.factories[target]; ok {
			seen[alias] = struct{}{}
		}
	}
	for name := range m.custom {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
