package vw

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCharacter is matched by every InvalidCharacterError.
var ErrInvalidCharacter = errors.New("invalid character")

// InvalidCharacterError reports a label, name or path that contains one of
// the characters reserved by the example line format.
type InvalidCharacterError struct {
	Value string
}

func (e *InvalidCharacterError) Error() string {
	return fmt.Sprintf("invalid character in %q: space, ':' and '|' are reserved", e.Value)
}

// Is reports whether target is ErrInvalidCharacter.
func (e *InvalidCharacterError) Is(target error) bool {
	return target == ErrInvalidCharacter
}

const reservedCharacters = " :|"

var escaper = strings.NewReplacer(
	" ", `\_`,
	":", `\;`,
	"|", `\\`,
)

// Validate returns an *InvalidCharacterError if s contains a space, a colon
// or a pipe.
func Validate(s string) error {
	if strings.ContainsAny(s, reservedCharacters) {
		return &InvalidCharacterError{Value: s}
	}
	return nil
}

// Escape replaces every reserved character in s with its escape sequence:
// space becomes `\_`, ':' becomes `\;` and '|' becomes `\\`.
func Escape(s string) string {
	if !strings.ContainsAny(s, reservedCharacters) {
		return s
	}
	return escaper.Replace(s)
}
