package session

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"sales", false},
		{"Tenant_42", false},
		{"cs-night-shift", false},
		{"a", false},
		{strings.Repeat("x", 64), false},
		{"", true},
		{strings.Repeat("x", 65), true},
		{"two words", true},
		{"acme.support", true},
		{"../etc", true},
		{"team/a", true},
		{"ops@home", true},
	}
	for _, tt := range tests {
		err := ValidateID(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidID) {
			t.Errorf("ValidateID(%q) error = %v, want ErrInvalidID", tt.id, err)
		}
	}
}
