package domain

import "time"

// OTPRecord is the store-resident state of one pending code.
type OTPRecord struct {
	Code      string
	Attempts  int
	CreatedAt time.Time
}

// OTPResult is the outcome of issuing a code. Code is set only when the
// underlying send succeeded.
type OTPResult struct {
	Success   bool      `json:"success"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Response  Response  `json:"response"`
}

// Failed is the complement of Success.
func (r OTPResult) Failed() bool {
	return !r.Success
}

// ExpiresIn returns the time left before expiry, never negative.
func (r OTPResult) ExpiresIn(now time.Time) time.Duration {
	if d := r.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// IsExpired reports whether now is at or past ExpiresAt.
func (r OTPResult) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
