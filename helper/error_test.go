package helper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewError(t *testing.T) {
	t.Run("Wraps operation and underlying error", func(t *testing.T) {
		underlying := errors.New("connection refused")

		err := NewError("open index", underlying)

		assert.Equal(t, "error in open index: connection refused", err.Error())
		assert.ErrorIs(t, err, underlying, "Expected errors.Is to see through the wrapper")
	})

	t.Run("Unwrap returns the underlying error", func(t *testing.T) {
		underlying := errors.New("boom")

		err := NewError("op", underlying)

		assert.Equal(t, underlying, errors.Unwrap(err))
	})
}
