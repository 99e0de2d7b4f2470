package vector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerEmptyContent(t *testing.T) {
	c := NewChunker()
	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\n  "))
}

func TestChunkerShortContentSingleChunk(t *testing.T) {
	c := NewChunker()
	chunks := c.Chunk("A short document.\n\nWith two paragraphs.")
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "A short document.")
	assert.Contains(t, chunks[0], "With two paragraphs.")
}

func TestChunkerSplitsAtParagraphBoundaries(t *testing.T) {
	c := NewChunker(func(o *ChunkerOptions) {
		o.Size = 100
		o.Overlap = 20
	})

	para := strings.Repeat("word ", 15) // ~75 chars
	content := para + "\n\n" + para + "\n\n" + para

	chunks := c.Chunk(content)
	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 130, "chunk should stay near the target size")
	}
}

func TestChunkerHardSplitsOversizedParagraph(t *testing.T) {
	c := NewChunker(func(o *ChunkerOptions) {
		o.Size = 100
		o.Overlap = 20
	})

	content := strings.Repeat("x", 250)
	chunks := c.Chunk(content)
	require.GreaterOrEqual(t, len(chunks), 3)
	assert.Equal(t, 100, len(chunks[0]))

	// Overlap: each subsequent chunk starts 80 characters after the previous.
	var total int
	for _, chunk := range chunks {
		total += len(chunk)
	}
	assert.Greater(t, total, 250, "overlap duplicates boundary content")
}

func TestChunkerDefaults(t *testing.T) {
	c := NewChunker(func(o *ChunkerOptions) {
		o.Size = -5
		o.Overlap = 5000
	})
	// Invalid options fall back to workable values.
	chunks := c.Chunk(strings.Repeat("a", 3000))
	assert.NotEmpty(t, chunks)
}
