package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKernelErrorMessage(t *testing.T) {
	err := NewEffectError(7, "boom", errors.New("underlying"))
	assert.Equal(t, "effect_error: op 7: boom", err.Error())
	assert.ErrorIs(t, err, err.Err)
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(NewCompileError("bad syntax", nil)))
	assert.True(t, IsFatal(&KernelError{Code: ErrFatal, Message: "out of memory"}))
	assert.False(t, IsFatal(errors.New("plain error")))
}
