package domain

import "strings"

// MaxBulkRecipients caps bulk and personalized sends.
const MaxBulkRecipients = 500

// SmsMessage is a single outbound message. SenderID overrides the gateway's
// configured sender when set.
type SmsMessage struct {
	Recipient string
	Content   string
	SenderID  string
}

// BulkMessage delivers the same content to many recipients in one request.
type BulkMessage struct {
	Recipients []string
	Content    string
	SenderID   string
}

// Count returns the number of recipients.
func (m BulkMessage) Count() int {
	return len(m.Recipients)
}

// RecipientsAsString joins the recipients with commas.
func (m BulkMessage) RecipientsAsString() string {
	return strings.Join(m.Recipients, ",")
}

// PersonalizedMessage is one entry of a personalized batch.
type PersonalizedMessage struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}
