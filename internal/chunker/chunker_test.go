package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New(Options{})
	require.NotNil(t, c)
	assert.Equal(t, DefaultMaxTokens, c.opts.MaxTokens)
	assert.Equal(t, 0, c.opts.Overlap)

	c = New(Options{MaxTokens: 8, Overlap: 20})
	assert.Equal(t, 2, c.opts.Overlap, "overlap is clamped below the chunk size")
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, Split("", DefaultOptions()))
	assert.Empty(t, Split(" \n\n\t\n", DefaultOptions()))
}

func TestSplit_SingleChunk(t *testing.T) {
	chunks := Split("First paragraph.\r\n\r\nSecond paragraph.  \n", DefaultOptions())

	require.Len(t, chunks, 1)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, len(chunks[0].Content)/4, chunks[0].TokenCount)
	assert.Empty(t, chunks[0].Section)
}

func TestSplit_RespectsMaxTokens(t *testing.T) {
	var paras []string
	for i := 0; i < 20; i++ {
		paras = append(paras, "The sprint review covered capacity and remaining work.")
	}
	text := strings.Join(paras, "\n\n")

	opts := Options{MaxTokens: 40}
	chunks := Split(text, opts)

	require.Greater(t, len(chunks), 1)
	var words int
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.LessOrEqual(t, len(ch.Content), opts.MaxTokens*TokensPerChar)
		words += len(strings.Fields(ch.Content))
	}
	assert.Equal(t, len(strings.Fields(text)), words, "no overlap means no repeated words")
}

func TestSplit_Overlap(t *testing.T) {
	text := "alpha bravo charlie delta\n\necho foxtrot golf hotel"

	chunks := Split(text, Options{MaxTokens: 10, Overlap: 3})

	require.Len(t, chunks, 2)
	assert.Equal(t, "alpha bravo charlie delta", chunks[0].Content)
	assert.Equal(t, "delta\n\necho foxtrot golf hotel", chunks[1].Content)
}

func TestSplit_Headings(t *testing.T) {
	text := "Preamble line.\n\n# Intro\nWelcome text.\n\n## Scope\nScope text here.\n\n#hashtag is not a heading"

	chunks := Split(text, DefaultOptions())

	require.Len(t, chunks, 3)
	assert.Equal(t, "Preamble line.", chunks[0].Content)
	assert.Empty(t, chunks[0].Section)

	assert.Equal(t, "# Intro\n\nWelcome text.", chunks[1].Content)
	assert.Equal(t, "Intro", chunks[1].Section)

	assert.Equal(t, "## Scope\n\nScope text here.\n\n#hashtag is not a heading", chunks[2].Content)
	assert.Equal(t, "Scope", chunks[2].Section)
}

func TestSplit_OverlapDoesNotCrossHeadings(t *testing.T) {
	text := "# One\nalpha bravo\n\n# Two\ncharlie delta"

	chunks := Split(text, Options{MaxTokens: 100, Overlap: 10})

	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[1].Content, "# Two"))
}

func TestSplit_LongParagraph(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = "word"
	}
	chunks := Split(strings.Join(words, " "), Options{MaxTokens: 10})

	require.Greater(t, len(chunks), 1)
	total := 0
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 40)
		total += strings.Count(ch.Content, "word")
	}
	assert.Equal(t, 100, total)
}

func TestSplit_LongWordCutAtRuneBoundary(t *testing.T) {
	word := strings.Repeat("é", 30) // 60 bytes

	chunks := Split(word, Options{MaxTokens: 5})

	require.Greater(t, len(chunks), 1)
	var joined strings.Builder
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 20)
		assert.True(t, strings.HasPrefix(ch.Content, "é"))
		joined.WriteString(ch.Content)
	}
	assert.Equal(t, word, joined.String())
}

func TestToInputs(t *testing.T) {
	chunks := []Chunk{
		{Content: "a", Index: 0, TokenCount: 1},
		{Content: "b", Index: 1, TokenCount: 1, Section: "Scope"},
	}
	base := map[string]any{"title": "Runbook"}

	inputs := ToInputs(chunks, base)

	require.Len(t, inputs, 2)
	assert.Equal(t, map[string]any{"title": "Runbook"}, inputs[0].Metadata)
	assert.Equal(t, map[string]any{"title": "Runbook", "section": "Scope"}, inputs[1].Metadata)
	assert.Equal(t, 1, inputs[1].ChunkIndex)
	assert.Len(t, base, 1, "base map is not mutated")
}

func TestOverlapTail(t *testing.T) {
	assert.Equal(t, "", overlapTail("alpha bravo", 0))
	assert.Equal(t, "bravo", overlapTail("alpha bravo", 8))
	assert.Equal(t, "alpha bravo", overlapTail("alpha bravo", 11))
	assert.Equal(t, "", overlapTail("alphabravo", 4))
}
