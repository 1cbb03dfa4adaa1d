// Package otp extracts one-time codes from inbound message text and formats
// outbound code messages.
package otp

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidCode is returned when a code is not 4 to 8 digits.
var ErrInvalidCode = errors.New("invalid OTP code: must be 4-8 digits")

// DefaultExpiryMinutes is used when a caller does not give an expiry.
const DefaultExpiryMinutes = 5

// Placeholder is replaced by the emphasized code in templates.
const Placeholder = "{code}"

// Patterns are tried in order; the first capture wins.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)copy\s*code[:\s]+(\d{4,8})`),
	regexp.MustCompile(`(?i)(?:code|otp|verification\s*code)[:\s]+(\d{4,8})`),
	regexp.MustCompile(`(?i)(\d{4,8})\s+(?:is\s+your|is\s+the|as\s+your)\s+(?:code|otp|verification\s*code)`),
	regexp.MustCompile(`(?i)your\s+(?:code|otp|verification\s*code)\s+is[:\s]+(\d{4,8})`),
	regexp.MustCompile(`^(\d{4,8})$`),
	regexp.MustCompile(`\*{1,2}(\d{4,8})\*{1,2}`),
}

var codeRe = regexp.MustCompile(`^\d{4,8}$`)

// Extract returns the first one-time code found in text.
func Extract(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Validate checks that code is 4 to 8 ASCII digits.
func Validate(code string) error {
	if !codeRe.MatchString(code) {
		return ErrInvalidCode
	}
	return nil
}

// Format renders the message body for code. A template containing the
// placeholder has it replaced with the bold code; any other non-empty
// template is sent as-is; an empty template yields the stock message.
func Format(code, template string, expiryMinutes int) (string, error) {
	if err := Validate(code); err != nil {
		return "", err
	}
	if expiryMinutes <= 0 {
		expiryMinutes = DefaultExpiryMinutes
	}
	switch {
	case strings.Contains(template, Placeholder):
		return strings.ReplaceAll(template, Placeholder, "*"+code+"*"), nil
	case strings.TrimSpace(template) != "":
		return template, nil
	}
	return fmt.Sprintf("Your verification code is *%s*\n\nThis code is valid for %d minutes. Do not share it with anyone.", code, expiryMinutes), nil
}
