package domain

import (
	"fmt"
	"strings"
)

// Channel is a messaging transport.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// IsValidChannel checks if a channel is one of the built-in transports.
func IsValidChannel(c Channel) bool {
	return c == ChannelSMS || c == ChannelWhatsApp
}

// DeliveryStatus is the lifecycle state reported by a delivery webhook.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// ParseDeliveryStatus parses a vendor status string, case-insensitively.
func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	s := DeliveryStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case DeliveryPending, DeliverySent, DeliveryDelivered, DeliveryFailed:
		return s, nil
	}
	return "", fmt.Errorf("%w: delivery status %q", ErrInvalidInput, raw)
}

// IsTerminal reports whether no further status change is expected.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// DeliveryReport is the inbound delivery event shape. Processing it is left to
// the consumer.
type DeliveryReport struct {
	ResourceID string         `json:"resource_id"`
	Status     DeliveryStatus `json:"status"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Channel    Channel        `json:"channel"`
}
