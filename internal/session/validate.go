package session

import (
	"errors"
	"regexp"
)

var idRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ErrInvalidID is returned for session ids outside the allowed alphabet.
var ErrInvalidID = errors.New("Invalid session ID. Use only letters, numbers, underscore, and dash.")

// ValidateID checks that id conforms to session naming rules.
func ValidateID(id string) error {
	if !idRegexp.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}
