package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParagraphs(t *testing.T) {
	t.Run("skips blank and numbers missing ids", func(t *testing.T) {
		p, err := ParseParagraphs([]byte(`
paragraphs:
  - content: "   "
  - content: "the quick brown fox"
`))
		require.NoError(t, err)

		got, err := p.GetRandomParagraph(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.ID)
		assert.Equal(t, "the quick brown fox", got.Content)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := ParseParagraphs([]byte("paragraphs: []"))
		require.Error(t, err)
	})

	t.Run("broken yaml", func(t *testing.T) {
		_, err := ParseParagraphs([]byte("paragraphs: ["))
		require.Error(t, err)
	})
}

func TestNewParagraphProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paragraphs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
paragraphs:
  - id: 7
    content: ab cd
`), 0o600))

	p, err := NewParagraphProvider(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	got, err := p.GetRandomParagraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)

	cancel()

	_, err = p.GetRandomParagraph(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = NewParagraphProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
