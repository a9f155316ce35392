package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidStateWrapsSentinel(t *testing.T) {
	err := InvalidState("cannot cancel appointment in status %q", "completed")

	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, `invalid state: cannot cancel appointment in status "completed"`, err.Error())
}
