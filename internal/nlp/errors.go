package nlp

import (
	"errors"
	"fmt"
)

const (
	ReasonEmpty    = "empty"
	ReasonTooShort = "too_short"
	ReasonTooLong  = "too_long"
)

// InputError rejects source text before any parsing happens.
type InputError struct {
	Reason string
	Length int
	Limit  int
}

func (e *InputError) Error() string {
	switch e.Reason {
	case ReasonEmpty:
		return "input text is empty"
	case ReasonTooShort:
		return fmt.Sprintf("input text too short: %d characters, need at least %d", e.Length, e.Limit)
	case ReasonTooLong:
		return fmt.Sprintf("input text too long: %d characters, limit is %d", e.Length, e.Limit)
	default:
		return "invalid input text: " + e.Reason
	}
}

func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
