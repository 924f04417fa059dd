package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

const (
	// DefaultMaxTokens is the target maximum token count per chunk
	DefaultMaxTokens = 500

	// DefaultOverlap is how many tokens of the previous chunk are repeated
	DefaultOverlap = 50

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Options controls chunk sizing
type Options struct {
	MaxTokens int
	Overlap   int
}

// DefaultOptions returns the sizing used for document ingestion
func DefaultOptions() Options {
	return Options{MaxTokens: DefaultMaxTokens, Overlap: DefaultOverlap}
}

func (o Options) normalized() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.MaxTokens {
		o.Overlap = o.MaxTokens / 4
	}
	return o
}

// Chunk is one span of split text
type Chunk struct {
	Content    string
	Index      int
	TokenCount int
	Section    string // nearest preceding heading, empty before the first one
}

// Chunker splits free text into paragraph-aligned chunks
type Chunker struct {
	opts Options
}

// New creates a new Chunker instance
func New(opts Options) *Chunker {
	return &Chunker{opts: opts.normalized()}
}

// Split is shorthand for New(opts).Split(text)
func Split(text string, opts Options) []Chunk {
	return New(opts).Split(text)
}

// Split divides text into chunks of at most MaxTokens estimated tokens.
// Paragraphs are kept whole when they fit; a markdown heading always starts
// a new chunk and becomes the section of the chunks that follow it. Oversized
// paragraphs are split on word boundaries.
func (c *Chunker) Split(text string) []Chunk {
	maxChars := c.opts.MaxTokens * TokensPerChar
	overlapChars := c.opts.Overlap * TokensPerChar

	var (
		chunks     []Chunk
		buf        []string
		size       int
		section    string
		bufSection string
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		content := strings.Join(buf, "\n\n")
		chunks = append(chunks, Chunk{
			Content:    content,
			Index:      len(chunks),
			TokenCount: types.EstimateTokens(content),
			Section:    bufSection,
		})
		buf = nil
		size = 0
	}

	add := func(piece string) {
		if len(buf) == 0 {
			bufSection = section
		} else {
			size += 2
		}
		buf = append(buf, piece)
		size += len(piece)
	}

	for _, para := range paragraphs(text) {
		if heading, ok := headingText(para); ok {
			flush()
			section = heading
		}

		for _, piece := range splitLong(para, maxChars) {
			if len(buf) > 0 && size+2+len(piece) > maxChars {
				tail := overlapTail(strings.Join(buf, "\n\n"), overlapChars)
				flush()
				if tail != "" && len(tail)+2+len(piece) <= maxChars {
					add(tail)
				}
			}
			add(piece)
		}
	}
	flush()

	return chunks
}

// ToInputs converts chunks into storage inputs. Every chunk's metadata gets a
// copy of base plus its section when known.
func ToInputs(chunks []Chunk, base map[string]any) []types.ChunkInput {
	inputs := make([]types.ChunkInput, len(chunks))
	for i, ch := range chunks {
		meta := make(map[string]any, len(base)+1)
		for k, v := range base {
			meta[k] = v
		}
		if ch.Section != "" {
			meta["section"] = ch.Section
		}
		inputs[i] = types.ChunkInput{
			Content:    ch.Content,
			TokenCount: ch.TokenCount,
			ChunkIndex: ch.Index,
			Metadata:   meta,
		}
	}
	return inputs
}

// paragraphs splits text on blank lines. Heading lines are returned as
// paragraphs of their own.
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		out   []string
		lines []string
	)
	emit := func() {
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
			lines = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			emit()
		case isHeading(trimmed):
			emit()
			out = append(out, trimmed)
		default:
			lines = append(lines, strings.TrimRight(line, " \t"))
		}
	}
	emit()

	return out
}

func isHeading(line string) bool {
	if !strings.HasPrefix(line, "#") {
		return false
	}
	rest := strings.TrimLeft(line, "#")
	return len(line)-len(rest) <= 6 && strings.HasPrefix(rest, " ") && strings.TrimSpace(rest) != ""
}

func headingText(para string) (string, bool) {
	if !isHeading(para) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(para, "#")), true
}

// splitLong breaks a paragraph that does not fit in maxChars into word-aligned
// pieces. Words longer than maxChars are cut at rune boundaries.
func splitLong(para string, maxChars int) []string {
	if len(para) <= maxChars {
		return []string{para}
	}

	var (
		pieces []string
		b      strings.Builder
	)
	for _, word := range strings.Fields(para) {
		for _, w := range splitRunes(word, maxChars) {
			if b.Len() > 0 && b.Len()+1+len(w) > maxChars {
				pieces = append(pieces, b.String())
				b.Reset()
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(w)
		}
	}
	if b.Len() > 0 {
		pieces = append(pieces, b.String())
	}
	return pieces
}

func splitRunes(word string, maxChars int) []string {
	var out []string
	for len(word) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(word[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxChars
		}
		out = append(out, word[:cut])
		word = word[cut:]
	}
	if word != "" {
		out = append(out, word)
	}
	return out
}

// overlapTail returns the longest run of trailing words of content that fits
// in n bytes
func overlapTail(content string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(content)
	size := 0
	start := len(words)
	for start > 0 {
		next := len(words[start-1])
		if size > 0 {
			next++
		}
		if size+next > n {
			break
		}
		size += next
		start--
	}
	return strings.Join(words[start:], " ")
}
