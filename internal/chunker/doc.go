// Package chunker divides free text into chunks for embedding and search.
//
// Documents, wiki pages and generated work-item or sprint snapshots are split
// at paragraph boundaries so each chunk stays readable on its own.
//
// # Basic Usage
//
//	chunks := chunker.Split(text, chunker.DefaultOptions())
//	for _, ch := range chunks {
//	    fmt.Printf("Chunk %d: %d tokens (%s)\n", ch.Index, ch.TokenCount, ch.Section)
//	}
//
// # Chunk Sizing
//
// Options.MaxTokens bounds each chunk using a simple heuristic (chars/4).
// Paragraphs are packed together until the next one would not fit. A single
// paragraph larger than the limit is split on word boundaries.
//
// Options.Overlap repeats the trailing words of a chunk at the start of the
// next one so a sentence spanning the cut can still be matched. Overlap never
// crosses a heading.
//
// # Sections
//
// Markdown headings (# to ######) start a new chunk. The heading text is kept
// as Chunk.Section and stored as the "section" metadata key by ToInputs:
//
//	inputs := chunker.ToInputs(chunks, map[string]any{"title": "Runbook"})
//	ids, err := store.InsertChunks(ctx, projectID, types.SourceWiki, pageID, inputs)
package chunker
