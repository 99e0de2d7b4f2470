package vector

import "strings"

// ChunkerOptions configure document chunking.
type ChunkerOptions struct {
	// Size is the target chunk length in characters.
	Size int
	// Overlap is how many trailing characters of one chunk repeat at the
	// start of the next, preserving context across boundaries.
	Overlap int
}

// Chunker splits documents into overlapping chunks for embedding. It prefers
// paragraph boundaries and falls back to hard character splits for oversized
// paragraphs.
type Chunker struct {
	opts ChunkerOptions
}

// NewChunker creates a Chunker.
func NewChunker(optFns ...func(o *ChunkerOptions)) *Chunker {
	opts := ChunkerOptions{Size: 1000, Overlap: 200}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Size <= 0 {
		opts.Size = 1000
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		opts.Overlap = opts.Size / 5
	}
	return &Chunker{opts: opts}
}

// Chunk splits content into chunks. Whitespace-only content yields nil.
func (c *Chunker) Chunk(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			chunks = append(chunks, text)
		}
		current.Reset()
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > c.opts.Size {
			flush()
			chunks = append(chunks, c.hardSplit(para)...)
			continue
		}

		if current.Len() > 0 && current.Len()+len(para)+2 > c.opts.Size {
			tail := overlapTail(current.String(), c.opts.Overlap)
			flush()
			if tail != "" {
				current.WriteString(tail)
				current.WriteString("\n\n")
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// hardSplit cuts an oversized paragraph into fixed windows with overlap.
func (c *Chunker) hardSplit(text string) []string {
	var chunks []string
	step := c.opts.Size - c.opts.Overlap
	for start := 0; start < len(text); start += step {
		end := start + c.opts.Size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, strings.TrimSpace(text[start:end]))
		if end == len(text) {
			break
		}
	}
	return chunks
}

// overlapTail returns the last n characters of text, cut at a word boundary.
func overlapTail(text string, n int) string {
	if n <= 0 || len(text) <= n {
		return ""
	}
	tail := text[len(text)-n:]
	if idx := strings.IndexAny(tail, " \n\t"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
