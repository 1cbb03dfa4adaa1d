package wa

import (
	"errors"
	"testing"
)

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"08123456789", "628123456789"},
		{"+62 812-3456-789", "628123456789"},
		{"628123456789", "628123456789"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FormatPhone(tt.in); got != tt.want {
			t.Errorf("FormatPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatJID(t *testing.T) {
	tests := []struct {
		in    string
		group bool
		want  string
	}{
		{"08123456789", false, "628123456789@s.whatsapp.net"},
		{"120363000000@g.us", false, "120363000000@g.us"},
		{"120363000000", true, "120363000000@g.us"},
		{"628123456789:4@s.whatsapp.net", false, "628123456789@s.whatsapp.net"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			jid, err := FormatJID(tt.in, tt.group)
			if err != nil {
				t.Fatalf("FormatJID: %v", err)
			}
			if jid.String() != tt.want {
				t.Errorf("FormatJID(%q) = %q, want %q", tt.in, jid.String(), tt.want)
			}
		})
	}
}

func TestFormatJIDEmpty(t *testing.T) {
	if _, err := FormatJID("  ", false); !errors.Is(err, ErrEmptyID) {
		t.Errorf("err = %v, want ErrEmptyID", err)
	}
}

func TestChatJID(t *testing.T) {
	jid, err := ChatJID("6281000-1600000000")
	if err != nil {
		t.Fatal(err)
	}
	if jid.Server != "g.us" {
		t.Errorf("legacy group id resolved to %q", jid.String())
	}
	if UserJID("0812") != "62812@s.whatsapp.net" {
		t.Errorf("UserJID = %q", UserJID("0812"))
	}
}
