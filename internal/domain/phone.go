package domain

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

const (
	// localNumberLength is the length of a national number that gets the
	// default country code prepended.
	localNumberLength = 8

	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// PhoneFormatter normalizes phone numbers into the digits-only form used for
// SMS, the "whatsapp:+" form used for WhatsApp and the "+" generic form.
// It is a narrow heuristic, not E.164 parsing: only 8-digit local numbers are
// expanded with the country code; other lengths pass through unchanged.
type PhoneFormatter struct {
	countryCode string
}

// NewPhoneFormatter returns a formatter using countryCode for local numbers.
// An empty code falls back to DefaultCountryCode.
func NewPhoneFormatter(countryCode string) PhoneFormatter {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return PhoneFormatter{countryCode: countryCode}
}

// WithCountryCode returns a copy of f using a different country code.
func (f PhoneFormatter) WithCountryCode(countryCode string) PhoneFormatter {
	return NewPhoneFormatter(countryCode)
}

// CountryCode returns the code prepended to local numbers.
func (f PhoneFormatter) CountryCode() string {
	if f.countryCode == "" {
		return DefaultCountryCode
	}
	return f.countryCode
}

// Format strips non-digits and a leading "00", then prepends the country
// code to an 8-digit number that does not already start with it.
func (f PhoneFormatter) Format(phone string) string {
	cc := f.CountryCode()
	digits := nonDigits.ReplaceAllString(phone, "")
	digits = strings.TrimPrefix(digits, "00")
	if len(digits) == localNumberLength && !strings.HasPrefix(digits, cc) {
		digits = cc + digits
	}
	return digits
}

// FormatWithCode formats phone using countryCode for local numbers.
func (f PhoneFormatter) FormatWithCode(phone, countryCode string) string {
	return f.WithCountryCode(countryCode).Format(phone)
}

// IsValid reports whether the formatted number has 10 to 15 digits.
func (f PhoneFormatter) IsValid(phone string) bool {
	n := len(f.Format(phone))
	return n >= minPhoneDigits && n <= maxPhoneDigits
}

// FormatForWhatsApp returns "whatsapp:+" followed by the formatted number.
func (f PhoneFormatter) FormatForWhatsApp(phone string) string {
	return "whatsapp:+" + f.Format(phone)
}

// Normalize returns "+" followed by the formatted number.
func (f PhoneFormatter) Normalize(phone string) string {
	return "+" + f.Format(phone)
}

// FormatMany formats each number, preserving order.
func (f PhoneFormatter) FormatMany(phones []string) []string {
	out := make([]string, len(phones))
	for i, p := range phones {
		out[i] = f.Format(p)
	}
	return out
}

// MaskPhone returns a masked version of a phone number for safe logging.
// Shows only the last 4 digits: "+14155552671" -> "***2671".
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "***" + phone[len(phone)-4:]
}
