package pipeline

import (
	"testing"

	"github.com/siherrmann/converse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	t.Run("Plain text passes through", func(t *testing.T) {
		text, err := ExtractText([]byte("hello world"), "text/plain")

		require.NoError(t, err)
		assert.Equal(t, "hello world", text)
	})

	t.Run("Invalid UTF-8 rejected", func(t *testing.T) {
		_, err := ExtractText([]byte{0xff, 0xfe, 0xfd}, "text/plain")

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrExtractionFailed)
	})

	t.Run("Unsupported content type rejected", func(t *testing.T) {
		_, err := ExtractText([]byte("data"), "application/msword")

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrExtractionFailed)
	})

	t.Run("Corrupt pdf rejected", func(t *testing.T) {
		_, err := ExtractText([]byte("not a pdf at all"), "application/pdf")

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrExtractionFailed)
	})
}
