package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdown(t *testing.T) {
	v2, err := EscapeMarkdown("DejaVuSans-Bold.ttf (1)", MarkdownV2)
	require.NoError(t, err)
	assert.Equal(t, `DejaVuSans\-Bold\.ttf \(1\)`, v2)

	v1, err := EscapeMarkdown("a_b*c", MarkdownV1)
	require.NoError(t, err)
	assert.Equal(t, `a\_b\*c`, v1)

	_, err = EscapeMarkdown("x", 3)
	assert.Error(t, err)

	assert.Equal(t, `a\\b\!`, MustEscapeV2(`a\b!`))
}
