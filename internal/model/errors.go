package model

import (
	"errors"
	"fmt"
)

// CapabilityError wraps a failure returned by an injected external capability
// (text parser, calendar mutation port). The underlying error is preserved.
type CapabilityError struct {
	// Op names the capability operation, e.g. "parse", "create", "update".
	Op  string
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// IsCapabilityError reports whether err (or anything it wraps) came from an
// external capability.
func IsCapabilityError(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}
