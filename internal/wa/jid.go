package wa

import (
	"errors"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// DefaultCountryCode replaces a leading trunk zero in local phone numbers.
const DefaultCountryCode = "62"

// ErrEmptyID is returned when an identifier has no usable digits.
var ErrEmptyID = errors.New("empty identifier")

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhone normalizes a phone reference to bare international digits.
// A leading 0 becomes DefaultCountryCode.
func FormatPhone(phone string) string {
	d := Digits(phone)
	if after, ok := strings.CutPrefix(d, "0"); ok {
		d = DefaultCountryCode + after
	}
	return d
}

// IsGroupID reports whether id addresses a group.
func IsGroupID(id string) bool {
	return strings.HasSuffix(id, "@"+types.GroupServer)
}

// FormatJID turns a phone number, bare group id, or full JID string into a
// protocol identifier. Strings that already carry a server are parsed as-is.
func FormatJID(id string, group bool) (types.JID, error) {
	id = strings.TrimSpace(id)
	if strings.Contains(id, "@") {
		jid, err := types.ParseJID(id)
		if err != nil {
			return types.EmptyJID, err
		}
		return jid.ToNonAD(), nil
	}
	if group {
		if id == "" {
			return types.EmptyJID, ErrEmptyID
		}
		return types.NewJID(id, types.GroupServer), nil
	}
	phone := FormatPhone(id)
	if phone == "" {
		return types.EmptyJID, ErrEmptyID
	}
	return types.NewJID(phone, types.DefaultUserServer), nil
}

// ChatJID resolves a chat reference: ids ending in @g.us or containing a dash
// (legacy group ids) are groups, everything else is an individual.
func ChatJID(id string) (types.JID, error) {
	return FormatJID(id, IsGroupID(id) || (!strings.Contains(id, "@") && strings.Contains(id, "-")))
}

// UserJID formats a phone reference as an individual JID string.
func UserJID(phone string) string {
	return FormatPhone(phone) + "@" + types.DefaultUserServer
}
