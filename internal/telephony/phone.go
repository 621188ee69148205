package telephony

import (
	"strings"
	"unicode"
)

// FormatE164 normalizes a phone number for Twilio. Numbers that already carry a
// leading + are returned unchanged; ten-digit numbers are assumed to be US/Canada.
// It returns "" when the input has no digits.
func FormatE164(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	if strings.HasPrefix(phone, "+") {
		return phone
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)

	switch {
	case digits == "":
		return ""
	case len(digits) == 10:
		return "+1" + digits
	default:
		return "+" + digits
	}
}
