// Package errs holds the error taxonomy shared by the scheduling packages.
// Concrete errors wrap one of these sentinels so callers can branch with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrSlotUnavailable = errors.New("slot unavailable")
	ErrSlotExpired     = errors.New("slot expired")
	ErrLinkingFailure  = errors.New("patient therapist link failed")
	ErrInvalidInput    = errors.New("invalid input")
)

// InvalidState returns an ErrInvalidState carrying a human readable reason.
func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
