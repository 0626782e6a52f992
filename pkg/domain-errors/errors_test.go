package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, CodeUnavailable, "store down")

	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeUnavailable))
	assert.Equal(t, "store down: boom", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestCodeOf(t *testing.T) {
	t.Run("finds code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("apply: %w", New(CodeForbidden, "missing right"))
		assert.Equal(t, CodeForbidden, CodeOf(err))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	})
}
