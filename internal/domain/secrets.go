package domain

import "log/slog"

// SecretString wraps vendor credentials (API keys, auth tokens, passwords).
// It never prints its value through fmt or slog.
type SecretString string

// String returns a redacted placeholder, never the actual value.
func (s SecretString) String() string {
	return "[REDACTED]"
}

// LogValue implements slog.LogValuer so the value stays hidden even when the
// handler's ReplaceAttr redaction is bypassed.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Expose returns the actual secret value. Call it only at the point where the
// credential is handed to a vendor client.
func (s SecretString) Expose() string {
	return string(s)
}

// IsEmpty returns true if the secret is empty.
func (s SecretString) IsEmpty() bool {
	return len(s) == 0
}

var _ slog.LogValuer = SecretString("")
