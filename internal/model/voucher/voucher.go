// Package voucher splits the free-form voucher text users type into the
// serial and PIN fields the storefront expects.
package voucher

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	SerialLength = 14
	PinLength    = 16
	maxLength    = SerialLength + PinLength
)

// ErrInvalidFormat reports a parsed code whose field lengths are wrong.
var ErrInvalidFormat = errors.New("invalid serial or pin format")

var separators = strings.NewReplacer("-", "", "+", "")

// Code is a parsed voucher. Only codes passing Validate may reach the storefront.
type Code struct {
	Serial string
	Pin    string
}

// Parse strips separators, keeps at most the first 30 characters and splits
// them 14/16. It never fails; callers must Validate the result. Characters
// past the 30th are dropped.
func Parse(raw string) Code {
	cleaned := []rune(separators.Replace(raw))
	if len(cleaned) > maxLength {
		cleaned = cleaned[:maxLength]
	}

	if len(cleaned) <= SerialLength {
		return Code{Serial: string(cleaned)}
	}

	return Code{
		Serial: string(cleaned[:SerialLength]),
		Pin:    string(cleaned[SerialLength:]),
	}
}

// Validate reports ErrInvalidFormat unless both fields have their exact length.
func (c Code) Validate() error {
	if utf8.RuneCountInString(c.Serial) != SerialLength || utf8.RuneCountInString(c.Pin) != PinLength {
		return ErrInvalidFormat
	}
	return nil
}

// String masks the PIN so codes can be logged.
func (c Code) String() string {
	return c.Serial + "+" + strings.Repeat("*", utf8.RuneCountInString(c.Pin))
}
