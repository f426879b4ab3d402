// Package content provides the length-bounded text value accepted by the
// Markov chain service.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxLen is the largest accepted text length, in bytes of its UTF-8 encoding.
const MaxLen = 2000

var (
	// ErrInvalid matches every validation failure returned by New.
	ErrInvalid = errors.New("invalid content")
	// ErrEmpty is returned for zero-length text.
	ErrEmpty = fmt.Errorf("%w: text is empty", ErrInvalid)
	// ErrInvalidUTF8 is returned for text that is not valid UTF-8, which
	// encoding/json would rewrite on the wire.
	ErrInvalidUTF8 = fmt.Errorf("%w: text is not valid UTF-8", ErrInvalid)
)

// TooLongError reports text longer than Max bytes.
type TooLongError struct {
	Length int
	Max    int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("text is too long: %d bytes (max %d)", e.Length, e.Max)
}

// Is lets errors.Is(err, ErrInvalid) match a TooLongError.
func (e *TooLongError) Is(target error) bool {
	return target == ErrInvalid
}

// String is valid UTF-8 text guaranteed to hold between 1 and MaxLen bytes.
// The zero value holds no text and is rejected wherever a String is sent.
type String struct {
	s string
}

// New validates raw and wraps it unchanged.
func New(raw string) (String, error) {
	n := len(raw)
	switch {
	case n == 0:
		return String{}, ErrEmpty
	case n > MaxLen:
		return String{}, &TooLongError{Length: n, Max: MaxLen}
	case !utf8.ValidString(raw):
		return String{}, ErrInvalidUTF8
	}
	return String{s: raw}, nil
}

// MustNew is like New but panics on invalid input.
func MustNew(raw string) String {
	s, err := New(raw)
	if err != nil {
		panic(fmt.Sprintf("content: %v", err))
	}
	return s
}

// String returns the wrapped text.
func (s String) String() string { return s.s }

// Len returns the text length in bytes.
func (s String) Len() int { return len(s.s) }

// IsZero reports whether s was not produced by New.
func (s String) IsZero() bool { return s.s == "" }

// Validate re-checks the invariant; it only fails for the zero value.
func (s String) Validate() error {
	_, err := New(s.s)
	return err
}

// MarshalJSON encodes the text as a plain JSON string.
func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.s)
}

// UnmarshalJSON decodes a JSON string and validates it.
func (s *String) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := New(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
